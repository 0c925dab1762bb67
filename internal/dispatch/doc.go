// Package dispatch fans segments out to isolated worker processes.
//
// Each present segment gets a job file and its own OS process running the
// hidden "worker" subcommand; output goes to a per-segment log in the
// workspace. Dispatch returns only after every process has exited. With
// fail-fast enabled the first failure cancels the shared context, which
// terminates the remaining workers.
package dispatch
