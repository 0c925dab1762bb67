// Package pipeline orchestrates one vidscale run end to end.
//
// A run takes the workspace lock, resets the scratch directory, checks the
// input, plans the partition artifacts, cuts the source into segments, fans
// the segments out to worker processes and stitches their outputs back
// together with the original audio and subtitles. Every stage logs
// stage_start and stage_complete under a uuid run id, and every failure is
// classified with a services marker so the CLI can map it to an exit code.
//
// When history is enabled the run and its worker outcomes are written to the
// sqlite ledger. Ledger failures are logged and never fail the run.
package pipeline
