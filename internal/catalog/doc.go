// Package catalog derives the set of supported model resolutions from the
// artifact directory.
//
// Artifact filenames are underscore-separated; one field carries a
// WIDTHXHEIGHT token. The catalog is rebuilt from disk on every run and never
// writes to the directory.
package catalog
