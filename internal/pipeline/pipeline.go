package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"vidscale/internal/catalog"
	"vidscale/internal/config"
	"vidscale/internal/dispatch"
	"vidscale/internal/history"
	"vidscale/internal/logging"
	"vidscale/internal/media/ffprobe"
	"vidscale/internal/mediatool"
	"vidscale/internal/planner"
	"vidscale/internal/preflight"
	"vidscale/internal/recombine"
	"vidscale/internal/runconfig"
	"vidscale/internal/segmenter"
	"vidscale/internal/services"
	"vidscale/internal/worker"
	"vidscale/internal/workspace"
)

// Prober inspects a media file.
type Prober func(ctx context.Context, binary, path string) (ffprobe.Result, error)

// Request describes one run.
type Request struct {
	InputPath  string
	OutputPath string
	// Parallel overrides run.parallel when positive.
	Parallel int
	// Overrides are name=value pairs applied through runconfig.Params.Set.
	Overrides []string
}

// Result summarizes a completed run.
type Result struct {
	RunID            string
	Params           runconfig.Params
	Format           string
	SourceWidth      int
	SourceHeight     int
	Duration         float64
	Plan             planner.PartitionPlan
	Segments         []segmenter.Descriptor
	Workers          dispatch.Outcome
	RemovedOutput    bool
	AudioAttached    bool
	SubtitleAttached bool
	Elapsed          time.Duration
	// FailedStage names the stage that returned the run error, if any.
	FailedStage string
}

// Pipeline runs the upscale stages against one configuration.
type Pipeline struct {
	cfg          *config.Config
	logger       *slog.Logger
	runner       mediatool.Runner
	prober       Prober
	generator    planner.Generator
	store        *history.Store
	workerBinary string
	onWorkerDone func(dispatch.WorkerResult)
	preflight    func(context.Context, *config.Config) error
	newRunID     func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithRunner replaces the ffmpeg runner used for demuxing, splitting and recombination.
func WithRunner(r mediatool.Runner) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.runner = r
		}
	}
}

// WithProber replaces ffprobe.Inspect.
func WithProber(fn Prober) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.prober = fn
		}
	}
}

// WithGenerator replaces the configured artifact generator command.
func WithGenerator(g planner.Generator) Option {
	return func(p *Pipeline) { p.generator = g }
}

// WithHistory records runs in store.
func WithHistory(store *history.Store) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithWorkerBinary overrides dispatch.worker_binary.
func WithWorkerBinary(path string) Option {
	return func(p *Pipeline) { p.workerBinary = strings.TrimSpace(path) }
}

// WithOnWorkerDone registers a callback invoked as each worker exits.
func WithOnWorkerDone(fn func(dispatch.WorkerResult)) Option {
	return func(p *Pipeline) { p.onWorkerDone = fn }
}

// WithPreflight replaces preflight.Require.
func WithPreflight(fn func(context.Context, *config.Config) error) Option {
	return func(p *Pipeline) { p.preflight = fn }
}

// New constructs a Pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		runner:    mediatool.ExecRunner{},
		prober:    ffprobe.Inspect,
		preflight: preflight.Require,
		newRunID:  uuid.NewString,
	}
	if cfg != nil {
		p.workerBinary = strings.TrimSpace(cfg.Dispatch.WorkerBinary)
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")
	return p
}

// BaseParams builds the run configuration for req from cfg defaults and the
// request overrides.
func BaseParams(cfg *config.Config, req Request) (runconfig.Params, error) {
	params := runconfig.Params{
		InputPath:        strings.TrimSpace(req.InputPath),
		OutputPath:       strings.TrimSpace(req.OutputPath),
		Scale:            cfg.Run.Scale,
		Adjust:           cfg.Run.Adjust,
		PartitionOffsets: cfg.Offsets(),
	}
	if err := params.ApplyOverrides(req.Overrides); err != nil {
		return runconfig.Params{}, err
	}
	if params.OutputPath == "" {
		return runconfig.Params{}, services.Wrap(services.ErrValidation, "pipeline", "build params", "output path is required", nil)
	}
	if samePath(params.InputPath, params.OutputPath) {
		return runconfig.Params{}, services.Wrap(services.ErrValidation, "pipeline", "build params",
			fmt.Sprintf("output path %s is the input file", params.OutputPath), nil)
	}
	return params, nil
}

// samePath reports whether a and b name the same file, either lexically
// after resolving to absolute form or as the same inode.
func samePath(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

// Parallel resolves the segment count for req.
func (p *Pipeline) Parallel(req Request) int {
	if req.Parallel > 0 {
		return req.Parallel
	}
	return p.cfg.Run.Parallel
}

// Run executes every stage for req. On failure the partial Result is
// returned alongside the error.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if p.cfg == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "pipeline", "run", "configuration is missing", nil)
	}
	start := time.Now()
	result := Result{RunID: p.newRunID()}
	ctx = services.WithRunID(ctx, result.RunID)
	logger := logging.WithContext(ctx, p.logger)

	params, err := BaseParams(p.cfg, req)
	if err != nil {
		return result, err
	}
	result.Params = params
	parallel := p.Parallel(req)
	if parallel < 1 {
		return result, services.Wrap(services.ErrValidation, "pipeline", "run", fmt.Sprintf("parallel must be at least 1, got %d", parallel), nil)
	}
	if err := p.cfg.RequireInference(); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "check inference", "", err)
	}
	if p.preflight != nil {
		if err := p.preflight(ctx, p.cfg); err != nil {
			return result, err
		}
	}

	ws, err := workspace.New(p.cfg.Paths.WorkspaceDir)
	if err != nil {
		return result, err
	}
	if err := ws.Lock(); err != nil {
		return result, err
	}
	defer func() {
		if unlockErr := ws.Unlock(); unlockErr != nil {
			logger.Warn("workspace unlock failed", logging.Error(unlockErr))
		}
	}()

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("input", params.InputPath),
		logging.String("output", params.OutputPath),
		logging.Int("parallel", parallel),
		logging.Float64("scale", params.Scale),
		logging.Int("adjust", params.Adjust),
		logging.String("partition_offsets", params.OffsetsString()),
		logging.String("workspace", ws.Dir()),
	)
	p.recordStart(ctx, logger, result.RunID, params, parallel, start)

	err = p.run(ctx, logger, ws, parallel, &result)
	result.Elapsed = time.Since(start)
	p.recordFinish(ctx, logger, &result, err)
	if err != nil {
		return result, err
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.String("output", result.Params.OutputPath),
		logging.Duration("elapsed", result.Elapsed),
		logging.Bool("audio", result.AudioAttached),
		logging.Bool("subtitle", result.SubtitleAttached),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, ws *workspace.Workspace, parallel int, result *Result) error {
	ffmpeg := p.cfg.FFmpegBinary()
	var probe ffprobe.Result

	steps := []struct {
		name string
		fn   func(context.Context, *slog.Logger) error
	}{
		{StageValidate, func(ctx context.Context, logger *slog.Logger) error {
			if err := result.Params.RequireInput(); err != nil {
				return err
			}
			format, err := DetectFormat(result.Params.InputPath)
			if err != nil {
				return err
			}
			result.Format = format
			result.Params.VideoFormat = format
			logger.Info("input accepted", logging.String("format", format))
			return nil
		}},
		{StageReset, func(ctx context.Context, logger *slog.Logger) error {
			reset, err := ws.Reset(result.Params.OutputPath)
			if err != nil {
				return err
			}
			result.RemovedOutput = reset.RemovedOutput
			if reset.RemovedOutput {
				logger.Info("removed existing output", logging.String("path", result.Params.OutputPath))
			}
			return nil
		}},
		{StageProbe, func(ctx context.Context, logger *slog.Logger) error {
			var err error
			probe, err = p.prober(ctx, p.cfg.FFprobeBinary(), result.Params.InputPath)
			if err != nil {
				return services.Wrap(services.ErrExternalTool, StageProbe, "ffprobe", result.Params.InputPath, err)
			}
			result.SourceWidth, result.SourceHeight = probe.Dimensions()
			if result.SourceWidth <= 0 || result.SourceHeight <= 0 {
				return services.Wrap(services.ErrValidation, StageProbe, "inspect video", "input has no video stream", nil)
			}
			result.Duration = probe.DurationSeconds()
			if result.Duration <= 0 {
				return services.Wrap(services.ErrValidation, StageProbe, "inspect video", "input duration is unknown", nil)
			}
			logger.Info("source inspected",
				logging.String("resolution", fmt.Sprintf("%dx%d", result.SourceWidth, result.SourceHeight)),
				logging.Float64("duration_seconds", result.Duration),
				logging.Int("audio_streams", probe.AudioStreamCount()),
				logging.Int("subtitle_streams", probe.SubtitleStreamCount()),
			)
			return nil
		}},
		{StagePlan, func(ctx context.Context, logger *slog.Logger) error {
			plan, err := p.planner(logger).Prepare(ctx, result.SourceWidth, result.SourceHeight, result.Params)
			if err != nil {
				return err
			}
			result.Plan = plan
			result.Params = plan.Apply(result.Params)
			return nil
		}},
		{StageSegment, func(ctx context.Context, logger *slog.Logger) error {
			seg := segmenter.New(ws, ffmpeg, segmenter.WithRunner(p.runner), segmenter.WithLogger(logger))
			seg.ExtractSubtitle(ctx, result.Params.InputPath, probe)
			if _, err := seg.ExtractAudio(ctx, result.Params.InputPath, probe); err != nil {
				return err
			}
			descriptors, err := seg.Split(ctx, result.Params.InputPath, result.Format, result.Duration, parallel)
			if err != nil {
				return err
			}
			result.Segments = descriptors
			return nil
		}},
		{StageUpscale, func(ctx context.Context, logger *slog.Logger) error {
			outcome, err := p.dispatcher(ws, logger).Dispatch(ctx, result.Segments, result.Params)
			result.Workers = outcome
			return err
		}},
		{StageRecombine, func(ctx context.Context, logger *slog.Logger) error {
			rc := recombine.New(ws, ffmpeg, result.Format, recombine.WithRunner(p.runner), recombine.WithLogger(logger))
			out, err := rc.Recombine(ctx, result.Segments, result.Params.OutputPath)
			if err != nil {
				return err
			}
			result.AudioAttached = out.AudioAttached
			result.SubtitleAttached = out.SubtitleAttached
			return nil
		}},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.FailedStage = step.name
			return services.Wrap(services.ErrExternalTool, step.name, "run", "run interrupted", err)
		}
		if err := runStage(ctx, logger, step.name, step.fn); err != nil {
			result.FailedStage = step.name
			return err
		}
	}
	return nil
}

func (p *Pipeline) planner(logger *slog.Logger) *planner.Planner {
	opts := []planner.Option{
		planner.WithLogger(logger),
		planner.WithLimits(planner.Limits{MaxWidth: p.cfg.Generator.MaxWidth, MaxHeight: p.cfg.Generator.MaxHeight}),
	}
	switch {
	case p.generator != nil:
		opts = append(opts, planner.WithGenerator(p.generator))
	case strings.TrimSpace(p.cfg.Generator.Command) != "":
		opts = append(opts, planner.WithGenerator(&planner.CommandGenerator{
			Command:     p.cfg.Generator.Command,
			Args:        p.cfg.Generator.Args,
			ArtifactDir: p.cfg.Paths.ArtifactDir,
			Runner:      p.runner,
			Logger:      logger,
		}))
	}
	catalogOpts := catalog.Options{
		BaseArtifact: p.cfg.Catalog.BaseArtifact,
		Field:        p.cfg.Catalog.ResolutionField,
		Strict:       p.cfg.Catalog.Strict,
		Logger:       logger,
	}
	return planner.New(p.cfg.Paths.ArtifactDir, catalogOpts, opts...)
}

func (p *Pipeline) dispatcher(ws *workspace.Workspace, logger *slog.Logger) *dispatch.Dispatcher {
	template := dispatch.JobTemplate{
		ArtifactDir: p.cfg.Paths.ArtifactDir,
		Inference: worker.Command{
			Command: p.cfg.Inference.Command,
			Args:    append([]string(nil), p.cfg.Inference.Args...),
		},
		Logging: worker.LogSettings{
			Format: p.cfg.Logging.Format,
			Level:  p.cfg.Logging.Level,
		},
	}
	opts := []dispatch.Option{
		dispatch.WithFailFast(p.cfg.Dispatch.FailFast),
		dispatch.WithLogger(logger),
	}
	if p.workerBinary != "" {
		opts = append(opts, dispatch.WithWorkerBinary(p.workerBinary))
	}
	if p.onWorkerDone != nil {
		opts = append(opts, dispatch.WithOnWorkerDone(p.onWorkerDone))
	}
	return dispatch.New(ws, template, opts...)
}
