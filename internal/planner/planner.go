package planner

import (
	"context"
	"fmt"
	"log/slog"

	"vidscale/internal/catalog"
	"vidscale/internal/logging"
	"vidscale/internal/runconfig"
	"vidscale/internal/services"
)

// Limits bounds the resolutions the generator accepts.
type Limits struct {
	MaxWidth  int
	MaxHeight int
}

// DefaultLimits matches the largest frame the generator supports.
var DefaultLimits = Limits{MaxWidth: 1920, MaxHeight: 1080}

// Planner combines the pure partition computation with the artifact catalog
// and, when needed, artifact generation.
type Planner struct {
	artifactDir string
	catalogOpts catalog.Options
	generator   Generator
	limits      Limits
	logger      *slog.Logger
}

// Option customizes a Planner.
type Option func(*Planner)

// WithGenerator sets the artifact generator.
func WithGenerator(g Generator) Option {
	return func(p *Planner) { p.generator = g }
}

// WithLimits overrides DefaultLimits.
func WithLimits(l Limits) Option {
	return func(p *Planner) {
		if l.MaxWidth > 0 {
			p.limits.MaxWidth = l.MaxWidth
		}
		if l.MaxHeight > 0 {
			p.limits.MaxHeight = l.MaxHeight
		}
	}
}

// WithLogger sets the planner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) { p.logger = logger }
}

// New constructs a Planner over artifactDir.
func New(artifactDir string, catalogOpts catalog.Options, opts ...Option) *Planner {
	p := &Planner{
		artifactDir: artifactDir,
		catalogOpts: catalogOpts,
		limits:      DefaultLimits,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "planner")
	if p.catalogOpts.Logger == nil {
		p.catalogOpts.Logger = p.logger
	}
	return p
}

// Plan computes the partition plan and checks the catalog without generating
// anything.
func (p *Planner) Plan(width, height int, params runconfig.Params) (PartitionPlan, catalog.Catalog, error) {
	plan, err := Compute(width, height, params.Scale, params.Adjust, params.PartitionOffsets[0])
	if err != nil {
		return PartitionPlan{}, catalog.Catalog{}, err
	}
	cat, _, err := catalog.Build(p.artifactDir, p.catalogOpts)
	if err != nil {
		return PartitionPlan{}, catalog.Catalog{}, err
	}
	plan.NeedsGeneration = !covered(cat, plan)
	return plan, cat, nil
}

// Prepare returns a plan whose artifacts are present in the artifact
// directory, generating them first when they are missing.
func (p *Planner) Prepare(ctx context.Context, width, height int, params runconfig.Params) (PartitionPlan, error) {
	logger := logging.WithContext(ctx, p.logger)

	plan, cat, err := p.Plan(width, height, params)
	if err != nil {
		return PartitionPlan{}, err
	}
	logger.Info("supported resolutions",
		logging.String(logging.FieldEventType, "catalog_loaded"),
		logging.String("supported", cat.String()),
		logging.Int("count", cat.Len()),
	)
	if params.Scale != 2 {
		logger.Info("rescaling source before 2x pass",
			logging.String("source", fmt.Sprintf("%dx%d", width, height)),
			logging.String("effective", fmt.Sprintf("%dx%d", plan.EffectiveWidth, plan.EffectiveHeight)),
			logging.Float64("scale", params.Scale),
		)
	}

	if plan.NeedsGeneration {
		if err := p.generate(ctx, plan); err != nil {
			return PartitionPlan{}, err
		}
	}

	logger.Info("partition plan ready",
		logging.String(logging.FieldEventType, "plan_ready"),
		logging.String("full_frame_artifact", plan.FullFrameArtifact),
		logging.String("partition_frame_artifact", plan.PartitionFrameArtifact),
		logging.Int("partition_height", plan.PartitionHeight),
		logging.Bool("generated", plan.NeedsGeneration),
	)
	return plan, nil
}

func (p *Planner) generate(ctx context.Context, plan PartitionPlan) error {
	w, h := plan.EffectiveWidth, plan.EffectiveHeight
	if h > p.limits.MaxHeight || w > p.limits.MaxWidth {
		return services.Wrap(services.ErrPrecondition, "plan", "generate artifacts",
			fmt.Sprintf("resolution %dx%d exceeds generator limit %dx%d", w, h, p.limits.MaxWidth, p.limits.MaxHeight), nil)
	}
	if p.generator == nil {
		return services.Wrap(services.ErrConfiguration, "plan", "generate artifacts",
			fmt.Sprintf("artifacts for %s/%s missing and no generator configured", plan.FullFrameArtifact, plan.PartitionFrameArtifact), nil)
	}

	logging.WithContext(ctx, p.logger).Info("artifacts missing; generating",
		logging.String(logging.FieldEventType, "artifact_missing"),
		logging.String("full_frame_artifact", plan.FullFrameArtifact),
		logging.String("partition_frame_artifact", plan.PartitionFrameArtifact),
	)
	if err := p.generator.Generate(ctx, h, w); err != nil {
		return services.Wrap(services.ErrExternalTool, "plan", "generate artifacts", fmt.Sprintf("%dx%d", w, h), err)
	}

	cat, _, err := catalog.Build(p.artifactDir, p.catalogOpts)
	if err != nil {
		return err
	}
	if !covered(cat, plan) {
		return services.Wrap(services.ErrExternalTool, "plan", "generate artifacts",
			fmt.Sprintf("generator did not produce artifact %s and %s", plan.FullFrameArtifact, plan.PartitionFrameArtifact), nil)
	}
	return nil
}

func covered(cat catalog.Catalog, plan PartitionPlan) bool {
	return cat.Has(plan.EffectiveWidth, plan.EffectiveHeight) &&
		cat.Has(plan.EffectiveWidth, plan.PartitionHeight)
}
