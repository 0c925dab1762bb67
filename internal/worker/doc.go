// Package worker runs the single-segment upscaling step inside a worker
// process.
//
// The dispatcher writes a Job file per segment and starts one process per
// job; the process exit status is the only completion signal it reads.
package worker
