package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"vidscale/internal/logging"
	"vidscale/internal/mediatool"
	"vidscale/internal/services"
)

// Report summarizes a finished segment.
type Report struct {
	Index      int
	OutputPath string
	Elapsed    time.Duration
	Stdout     string
}

// Option customizes Run.
type Option func(*options)

type options struct {
	runner mediatool.Runner
}

// WithRunner replaces the command runner used for the inference command.
func WithRunner(r mediatool.Runner) Option {
	return func(o *options) {
		if r != nil {
			o.runner = r
		}
	}
}

// Run upscales the segment described by job. The inference command's
// output is forwarded to this process's stdout and stderr.
func Run(ctx context.Context, job Job, logger *slog.Logger, opts ...Option) (Report, error) {
	o := options{runner: mediatool.StreamRunner{Stdout: os.Stdout, Stderr: os.Stderr}}
	for _, opt := range opts {
		opt(&o)
	}

	ctx = services.WithRunID(ctx, job.RunID)
	ctx = services.WithStage(ctx, "upscale")
	ctx = services.WithSegment(ctx, job.Index)
	logger = logging.WithContext(ctx, logging.NewComponentLogger(logger, "worker"))

	params := job.Params
	if err := params.RequireInput(); err != nil {
		return Report{}, err
	}
	if strings.TrimSpace(job.Inference.Command) == "" {
		return Report{}, services.Wrap(services.ErrConfiguration, "upscale", "inference", "inference command not configured", nil)
	}

	args := mediatool.ExpandArgs(job.Inference.Args, Placeholders(job))
	logger.Info("upscaling segment",
		logging.String(logging.FieldEventType, "segment_start"),
		logging.String("input", params.InputPath),
		logging.String("output", params.OutputPath),
		logging.String("full_frame_artifact", params.FullFrameArtifact),
		logging.String("partition_frame_artifact", params.PartitionFrameArtifact),
	)

	start := time.Now()
	result, err := o.runner.Run(ctx, job.Inference.Command, args...)
	elapsed := time.Since(start)
	if err != nil {
		return Report{}, services.Wrap(services.ErrExternalTool, "upscale", "inference",
			fmt.Sprintf("segment %d exited %d", job.Index, result.ExitCode), err)
	}

	info, err := os.Stat(params.OutputPath)
	if err != nil || info.Size() == 0 {
		return Report{}, services.Wrap(services.ErrExternalTool, "upscale", "verify output",
			fmt.Sprintf("inference produced no output at %s", params.OutputPath), err)
	}

	logger.Info("segment upscaled",
		logging.String(logging.FieldEventType, "segment_complete"),
		logging.Duration("elapsed", elapsed),
		logging.Int64("output_bytes", info.Size()),
	)
	return Report{
		Index:      job.Index,
		OutputPath: params.OutputPath,
		Elapsed:    elapsed,
		Stdout:     result.Stdout,
	}, nil
}

// Placeholders returns the values substituted into inference arguments.
func Placeholders(job Job) map[string]string {
	p := job.Params
	return map[string]string{
		"input":              p.InputPath,
		"output":             p.OutputPath,
		"full_artifact":      p.FullFrameArtifact,
		"partition_artifact": p.PartitionFrameArtifact,
		"partition_height":   strconv.Itoa(p.PartitionHeight),
		"scale":              strconv.FormatFloat(p.Scale, 'f', -1, 64),
		"adjust":             strconv.Itoa(p.Adjust),
		"offsets":            p.OffsetsString(),
		"artifact_dir":       job.ArtifactDir,
		"format":             p.VideoFormat,
	}
}
