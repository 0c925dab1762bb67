package mediatool

import "strconv"

// Audio codecs, subtitle codecs, and file names used by the pipeline.
const (
	AudioCodecAAC = "aac"

	SubtitleCodecMovText = "mov_text"
	SubtitleCodecSRT     = "srt"
	SubtitleCodecWebVTT  = "webvtt"
)

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
}

// AudioDemuxArgs writes every audio stream of input to an m4a file as AAC.
// FLAC, Opus, Vorbis, DTS and PCM tracks cannot be stream copied into m4a.
func AudioDemuxArgs(input, output string) []string {
	args := baseArgs()
	return append(args, "-i", input, "-map", "0:a", "-vn", "-sn", "-c:a", AudioCodecAAC, output)
}

// SubtitleExtractArgs converts the first subtitle stream of input to output.
func SubtitleExtractArgs(input, output string) []string {
	args := baseArgs()
	return append(args, "-i", input, "-map", "0:s:0", output)
}

// SegmentArgs splits the video of input into stream-copied chunks of
// segmentSeconds each. pattern must contain a %d verb for the chunk index.
func SegmentArgs(input string, segmentSeconds int, pattern string) []string {
	args := baseArgs()
	return append(args,
		"-i", input,
		"-map", "0:v:0",
		"-f", "segment",
		"-an", "-sn",
		"-c", "copy",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-reset_timestamps", "1",
		pattern,
	)
}

// ConcatInput is one optional auxiliary input for ConcatArgs.
type ConcatInput struct {
	Path  string
	Map   string // stream specifier suffix such as "a" or "s"
	Codec string // value for -c:<Map>
}

// ConcatArgs joins the segments listed in manifest with stream copy and
// attaches each auxiliary input as its own mapped stream.
func ConcatArgs(manifest string, extra []ConcatInput, output string) []string {
	args := baseArgs()
	args = append(args, "-f", "concat", "-safe", "0", "-i", manifest)
	for _, in := range extra {
		args = append(args, "-i", in.Path)
	}
	args = append(args, "-map", "0:v", "-c:v", "copy")
	for i, in := range extra {
		args = append(args, "-map", strconv.Itoa(i+1)+":"+in.Map, "-c:"+in.Map, in.Codec)
	}
	return append(args, output)
}

// SubtitleCodecFor returns the subtitle codec a container accepts.
func SubtitleCodecFor(format string) string {
	switch format {
	case "mkv":
		return SubtitleCodecSRT
	case "webm":
		return SubtitleCodecWebVTT
	default:
		return SubtitleCodecMovText
	}
}
