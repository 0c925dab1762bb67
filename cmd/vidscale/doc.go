// Package main hosts the vidscale CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the segment-parallel upscaling pipeline,
// re-executes itself as the hidden worker subcommand for each segment, and
// exposes the planner, artifact catalog, run history and environment checks
// without running a full upscale. It centralizes configuration resolution
// and logging setup so subcommands can focus on user experience instead of
// wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
