// Package runconfig holds the parameter record for one upscaling run.
//
// Params is built once per run from configuration defaults and CLI overrides,
// then copied per segment with WithSegment before crossing into a worker
// process. Named overrides go through Set, which rejects unknown names.
package runconfig
