package pipeline

import (
	"context"
	"log/slog"
	"time"

	"vidscale/internal/logging"
	"vidscale/internal/services"
)

// Stage names, also used as the stage field in logs.
const (
	StageValidate  = "validate"
	StageReset     = "reset"
	StageProbe     = "probe"
	StagePlan      = "plan"
	StageSegment   = "segment"
	StageUpscale   = "upscale"
	StageRecombine = "recombine"
)

// runStage wraps fn with stage_start/stage_complete logging.
func runStage(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context, *slog.Logger) error) error {
	stageCtx := services.WithStage(ctx, name)
	stageLogger := logging.WithContext(stageCtx, logger)

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
	)
	start := time.Now()
	if err := fn(stageCtx, stageLogger); err != nil {
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.Duration("elapsed", time.Since(start)),
			logging.Error(err),
		)
		return err
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}
