package recombine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vidscale/internal/fileutil"
	"vidscale/internal/logging"
	"vidscale/internal/mediatool"
	"vidscale/internal/segmenter"
	"vidscale/internal/services"
	"vidscale/internal/workspace"
)

// Result reports which auxiliary tracks made it into the output.
type Result struct {
	OutputPath       string
	Segments         int
	AudioAttached    bool
	SubtitleAttached bool
}

// Recombiner concatenates upscaled segments and restores audio and
// subtitles.
type Recombiner struct {
	ws     *workspace.Workspace
	ffmpeg string
	format string
	runner mediatool.Runner
	logger *slog.Logger
}

// Option customizes a Recombiner.
type Option func(*Recombiner)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r mediatool.Runner) Option {
	return func(rc *Recombiner) {
		if r != nil {
			rc.runner = r
		}
	}
}

// WithLogger sets the recombiner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rc *Recombiner) { rc.logger = logger }
}

// New constructs a Recombiner for segments of the given container format.
func New(ws *workspace.Workspace, ffmpegBinary, format string, opts ...Option) *Recombiner {
	rc := &Recombiner{ws: ws, ffmpeg: ffmpegBinary, format: format, runner: mediatool.ExecRunner{}}
	if rc.ffmpeg == "" {
		rc.ffmpeg = "ffmpeg"
	}
	for _, opt := range opts {
		opt(rc)
	}
	rc.logger = logging.NewComponentLogger(rc.logger, "recombine")
	return rc
}

// WriteManifest writes the concat list for every present segment in index
// order, regardless of the order workers finished in.
func (rc *Recombiner) WriteManifest(segments []segmenter.Descriptor) (int, error) {
	present := segmenter.PresentOnly(segments)
	sort.Slice(present, func(i, j int) bool { return present[i].Index < present[j].Index })
	if len(present) == 0 {
		return 0, services.Wrap(services.ErrRecombination, "recombine", "write manifest", "no segments to join", nil)
	}

	var b strings.Builder
	for _, seg := range present {
		if !fileutil.FileExists(seg.OutputPath) {
			return 0, services.Wrap(services.ErrRecombination, "recombine", "write manifest",
				fmt.Sprintf("segment %d output missing: %s", seg.Index, seg.OutputPath), nil)
		}
		name := seg.OutputPath
		if filepath.Dir(name) == rc.ws.Dir() {
			name = filepath.Base(name)
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeQuote(name))
	}
	if err := fileutil.WriteFileAtomic(rc.ws.ManifestPath(), []byte(b.String()), 0o644); err != nil {
		return 0, services.Wrap(services.ErrRecombination, "recombine", "write manifest", rc.ws.ManifestPath(), err)
	}
	return len(present), nil
}

// Stages returns the optional auxiliary inputs present in the workspace.
func (rc *Recombiner) Stages(outputFormat string) []mediatool.ConcatInput {
	var stages []mediatool.ConcatInput
	if fileutil.FileExists(rc.ws.AudioPath()) {
		stages = append(stages, mediatool.ConcatInput{Path: rc.ws.AudioPath(), Map: "a", Codec: mediatool.AudioCodecAAC})
	}
	if fileutil.FileExists(rc.ws.SubtitlePath()) {
		stages = append(stages, mediatool.ConcatInput{Path: rc.ws.SubtitlePath(), Map: "s", Codec: mediatool.SubtitleCodecFor(outputFormat)})
	}
	return stages
}

// Recombine joins the upscaled segments into outputPath. The result is
// written to a temporary sibling and renamed into place.
func (rc *Recombiner) Recombine(ctx context.Context, segments []segmenter.Descriptor, outputPath string) (Result, error) {
	logger := logging.WithContext(ctx, rc.logger)

	count, err := rc.WriteManifest(segments)
	if err != nil {
		return Result{}, err
	}

	outFormat := strings.TrimPrefix(strings.ToLower(filepath.Ext(outputPath)), ".")
	if outFormat == "" {
		outFormat = rc.format
	}
	stages := rc.Stages(outFormat)
	result := Result{OutputPath: outputPath, Segments: count}
	for _, s := range stages {
		switch s.Map {
		case "a":
			result.AudioAttached = true
		case "s":
			result.SubtitleAttached = true
		}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrRecombination, "recombine", "prepare output", outputPath, err)
	}
	// ffmpeg picks the muxer from the extension, so the temp name keeps one.
	tmpName := ".recombine-" + filepath.Base(outputPath)
	if filepath.Ext(outputPath) == "" {
		tmpName += "." + outFormat
	}
	tmpPath := filepath.Join(filepath.Dir(outputPath), tmpName)
	args := mediatool.ConcatArgs(rc.ws.ManifestPath(), stages, tmpPath)

	logger.Debug("executing ffmpeg concat",
		logging.Int("segments", count),
		logging.Bool("audio", result.AudioAttached),
		logging.Bool("subtitle", result.SubtitleAttached),
		logging.String("output", outputPath),
	)
	if _, err := rc.runner.Run(ctx, rc.ffmpeg, args...); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, services.Wrap(services.ErrRecombination, "recombine", "concat", outputPath, err)
	}
	if !fileutil.FileExists(tmpPath) {
		return Result{}, services.Wrap(services.ErrRecombination, "recombine", "concat", "ffmpeg did not produce output", nil)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, services.Wrap(services.ErrRecombination, "recombine", "replace output", outputPath, err)
	}

	logger.Info("segments recombined",
		logging.String(logging.FieldEventType, "recombine_complete"),
		logging.String("output", outputPath),
		logging.Int("segments", count),
		logging.Bool("audio", result.AudioAttached),
		logging.Bool("subtitle", result.SubtitleAttached),
	)
	return result, nil
}

// escapeQuote escapes a path for a single-quoted concat demuxer entry.
func escapeQuote(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
