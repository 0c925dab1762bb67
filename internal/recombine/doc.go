// Package recombine reassembles upscaled segments into the final video.
//
// The concat manifest lists segments strictly by index. Audio and subtitle
// tracks are attached as independent optional inputs, so any combination of
// them goes through the same ffmpeg invocation builder.
package recombine
