// Package segmenter splits a source video into time segments for parallel
// upscaling and extracts the audio and subtitle tracks that skip it.
//
// Segments are stream copies cut on keyframes, so only their order is
// exact; the nominal spans on each Descriptor document what the split
// aimed for.
package segmenter
