// Package workspace manages the scratch directory shared by the stages of a
// run.
//
// Every file a run produces lives under one directory with index-named
// entries, so concurrent workers never write the same path. A file lock next
// to the directory keeps two runs from sharing it.
package workspace
