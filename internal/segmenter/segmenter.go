package segmenter

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"vidscale/internal/fileutil"
	"vidscale/internal/logging"
	"vidscale/internal/media/ffprobe"
	"vidscale/internal/mediatool"
	"vidscale/internal/services"
	"vidscale/internal/workspace"
)

// Descriptor is one temporal segment. Index order equals temporal order.
// Start and End are the nominal span in seconds; the physical cut follows
// keyframes. Present is false when the split produced no file for Index.
type Descriptor struct {
	Index      int
	InputPath  string
	OutputPath string
	Start      float64
	End        float64
	Present    bool
}

// Segmenter splits a source video into per-worker segments and pulls out
// the auxiliary tracks that bypass upscaling.
type Segmenter struct {
	ws     *workspace.Workspace
	ffmpeg string
	runner mediatool.Runner
	logger *slog.Logger
}

// Option customizes a Segmenter.
type Option func(*Segmenter)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r mediatool.Runner) Option {
	return func(s *Segmenter) {
		if r != nil {
			s.runner = r
		}
	}
}

// WithLogger sets the segmenter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Segmenter) { s.logger = logger }
}

// New constructs a Segmenter writing into ws.
func New(ws *workspace.Workspace, ffmpegBinary string, opts ...Option) *Segmenter {
	s := &Segmenter{ws: ws, ffmpeg: ffmpegBinary, runner: mediatool.ExecRunner{}}
	if s.ffmpeg == "" {
		s.ffmpeg = "ffmpeg"
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "segmenter")
	return s
}

// SegmentSeconds returns the nominal segment length: the duration divided by
// parallel, rounded up, plus one second so the tail never spills into an
// extra segment.
func SegmentSeconds(duration float64, parallel int) (int, error) {
	if parallel < 1 {
		return 0, services.Wrap(services.ErrValidation, "segment", "segment length", fmt.Sprintf("parallel must be at least 1, got %d", parallel), nil)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return 0, services.Wrap(services.ErrValidation, "segment", "segment length", fmt.Sprintf("invalid duration %v", duration), nil)
	}
	return int(math.Ceil(duration/float64(parallel))) + 1, nil
}

// ExtractAudio encodes every audio stream into the workspace as AAC. It
// reports whether an audio file was produced; a source without audio is not
// an error.
func (s *Segmenter) ExtractAudio(ctx context.Context, inputPath string, probe ffprobe.Result) (bool, error) {
	logger := logging.WithContext(ctx, s.logger)
	if !probe.HasAudio() {
		logger.Info("source has no audio stream; skipping audio demux",
			logging.String(logging.FieldEventType, "audio_absent"),
		)
		return false, nil
	}

	out := s.ws.AudioPath()
	if _, err := s.runner.Run(ctx, s.ffmpeg, mediatool.AudioDemuxArgs(inputPath, out)...); err != nil {
		_, _ = fileutil.RemoveIfExists(out)
		return false, services.Wrap(services.ErrSegmentation, "segment", "extract audio", inputPath, err)
	}
	if !fileutil.FileExists(out) {
		return false, services.Wrap(services.ErrSegmentation, "segment", "extract audio", "ffmpeg produced no audio file", nil)
	}
	logger.Info("audio extracted",
		logging.String(logging.FieldEventType, "audio_extracted"),
		logging.String("path", out),
		logging.Int("streams", probe.AudioStreamCount()),
	)
	return true, nil
}

// ExtractSubtitle converts the first subtitle stream to SRT. Failures are
// logged and the run continues without subtitles.
func (s *Segmenter) ExtractSubtitle(ctx context.Context, inputPath string, probe ffprobe.Result) bool {
	logger := logging.WithContext(ctx, s.logger)
	if !probe.HasSubtitle() {
		logger.Debug("source has no subtitle stream",
			logging.String(logging.FieldEventType, "subtitle_absent"),
		)
		return false
	}

	out := s.ws.SubtitlePath()
	if _, err := s.runner.Run(ctx, s.ffmpeg, mediatool.SubtitleExtractArgs(inputPath, out)...); err != nil {
		_, _ = fileutil.RemoveIfExists(out)
		logging.WarnWithContext(logger, "subtitle extraction failed; continuing without subtitles", "subtitle_extract_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "image-based subtitle tracks cannot be converted to SRT"),
			logging.String(logging.FieldImpact, "output will have no subtitle track"),
		)
		return false
	}
	if !fileutil.FileExists(out) {
		return false
	}
	logger.Info("subtitle extracted",
		logging.String(logging.FieldEventType, "subtitle_extracted"),
		logging.String("path", out),
	)
	return true
}

// Split cuts the video stream into parallel stream-copied segments named
// part{i}.{format}. It always returns parallel descriptors; trailing ones the
// split did not produce are marked absent.
func (s *Segmenter) Split(ctx context.Context, inputPath, format string, duration float64, parallel int) ([]Descriptor, error) {
	segmentSeconds, err := SegmentSeconds(duration, parallel)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, s.logger)

	args := mediatool.SegmentArgs(inputPath, segmentSeconds, s.ws.SegmentPattern(format))
	if _, err := s.runner.Run(ctx, s.ffmpeg, args...); err != nil {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "split video", inputPath, err)
	}

	descriptors := Describe(duration, parallel, segmentSeconds, func(i int) (string, string) {
		return s.ws.SegmentPath(i, format), s.ws.ResultPath(i, format)
	})

	present := 0
	for i := range descriptors {
		descriptors[i].Present = fileutil.FileExists(descriptors[i].InputPath)
		if !descriptors[i].Present {
			continue
		}
		if i > 0 && !descriptors[i-1].Present {
			return nil, services.Wrap(services.ErrSegmentation, "segment", "split video",
				fmt.Sprintf("segment %d present after missing segment %d", i, i-1), nil)
		}
		present++
	}
	if present == 0 {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "split video", "ffmpeg produced no segments", nil)
	}
	if overflow := s.ws.SegmentPath(parallel, format); fileutil.FileExists(overflow) {
		return nil, services.Wrap(services.ErrSegmentation, "segment", "split video",
			fmt.Sprintf("ffmpeg produced more than %d segments", parallel), nil)
	}

	if present < parallel {
		logging.WarnWithContext(logger, "fewer segments than workers", "segments_short",
			logging.Int("present", present),
			logging.Int("parallel", parallel),
			logging.String(logging.FieldErrorHint, "keyframe spacing is coarser than the segment length"),
			logging.String(logging.FieldImpact, "some workers stay idle"),
		)
	}
	logger.Info("video split",
		logging.String(logging.FieldEventType, "segments_created"),
		logging.Int("segments", present),
		logging.Int("segment_seconds", segmentSeconds),
		logging.Float64("duration_seconds", duration),
	)
	return descriptors, nil
}

// Describe builds parallel descriptors with nominal spans
// [min(i*T, D), min((i+1)*T, D)]. paths supplies input and output file names.
func Describe(duration float64, parallel, segmentSeconds int, paths func(i int) (string, string)) []Descriptor {
	out := make([]Descriptor, parallel)
	t := float64(segmentSeconds)
	for i := range out {
		in, res := paths(i)
		out[i] = Descriptor{
			Index:      i,
			InputPath:  in,
			OutputPath: res,
			Start:      math.Min(float64(i)*t, duration),
			End:        math.Min(float64(i+1)*t, duration),
		}
	}
	return out
}

// PresentOnly filters descriptors to those with a physical segment file.
func PresentOnly(descriptors []Descriptor) []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Present {
			out = append(out, d)
		}
	}
	return out
}
