package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vidscale/internal/dispatch"
	"vidscale/internal/history"
	"vidscale/internal/logging"
	"vidscale/internal/runconfig"
)

func (p *Pipeline) recordStart(ctx context.Context, logger *slog.Logger, runID string, params runconfig.Params, parallel int, started time.Time) {
	if p.store == nil {
		return
	}
	err := p.store.StartRun(ctx, history.RunRecord{
		ID:         runID,
		InputPath:  params.InputPath,
		OutputPath: params.OutputPath,
		Parallel:   parallel,
		Scale:      params.Scale,
		Adjust:     params.Adjust,
		StartedAt:  started,
	})
	if err != nil {
		logging.WarnWithContext(logger, "history start failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+p.store.Path()),
			logging.String(logging.FieldImpact, "run will be missing from vidscale history"),
		)
	}
}

func (p *Pipeline) recordFinish(ctx context.Context, logger *slog.Logger, result *Result, runErr error) {
	if p.store == nil {
		return
	}
	// The run context may already be canceled; the ledger write should still land.
	writeCtx := context.WithoutCancel(ctx)

	if segments := segmentRecords(result.Workers); len(segments) > 0 {
		if err := p.store.RecordSegments(writeCtx, result.RunID, segments); err != nil {
			logger.Warn("history segment write failed", logging.Error(err))
		}
	}

	status := history.StatusSucceeded
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || ctx.Err() != nil:
		status = history.StatusCanceled
	default:
		status = history.StatusFailed
	}
	err := p.store.FinishRun(writeCtx, result.RunID, history.Completion{
		Status:            status,
		Err:               runErr,
		VideoFormat:       result.Format,
		FullArtifact:      result.Plan.FullFrameArtifact,
		PartitionArtifact: result.Plan.PartitionFrameArtifact,
		AudioAttached:     result.AudioAttached,
		SubtitleAttached:  result.SubtitleAttached,
	})
	if err != nil {
		logging.WarnWithContext(logger, "history finish failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+p.store.Path()),
			logging.String(logging.FieldImpact, "run status in vidscale history is stale"),
		)
	}
}

func segmentRecords(outcome dispatch.Outcome) []history.SegmentRecord {
	out := make([]history.SegmentRecord, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		rec := history.SegmentRecord{
			Index:    r.Index,
			ExitCode: r.ExitCode,
			Duration: r.Duration,
			LogPath:  r.LogPath,
			Status:   history.StatusSucceeded,
		}
		switch {
		case r.Canceled:
			rec.Status = history.StatusCanceled
		case !r.OK():
			rec.Status = history.StatusFailed
		}
		if r.Err != nil {
			rec.ErrorMessage = r.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}
