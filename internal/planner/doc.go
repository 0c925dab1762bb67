// Package planner computes the partition scheme for a video and makes sure
// the model artifacts it needs exist.
//
// Compute is pure arithmetic. Planner.Prepare adds the catalog lookup and
// invokes the artifact generator for resolutions the catalog lacks, refusing
// frames larger than the generator supports before anything is segmented.
package planner
