package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"vidscale/internal/services"
)

const runColumns = `id, input_path, output_path, video_format, parallel, scale, adjust,
    full_artifact, partition_artifact, status, error_message, audio_attached,
    subtitle_attached, started_at, finished_at, elapsed_ms`

// StartRun inserts a run row in the running state.
func (s *Store) StartRun(ctx context.Context, run RunRecord) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	status := run.Status
	if status == "" {
		status = StatusRunning
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (
            id, input_path, output_path, video_format, parallel, scale, adjust,
            full_artifact, partition_artifact, status, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.InputPath,
		run.OutputPath,
		nullIfEmpty(run.VideoFormat),
		run.Parallel,
		run.Scale,
		run.Adjust,
		nullIfEmpty(run.FullArtifact),
		nullIfEmpty(run.PartitionArtifact),
		status,
		formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the terminal status of a run. Empty artifact and format
// fields leave the stored values untouched.
func (s *Store) FinishRun(ctx context.Context, id string, done Completion) error {
	finished := done.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	status := done.Status
	if status == "" {
		status = StatusSucceeded
		if done.Err != nil {
			status = StatusFailed
		}
	}
	var errMsg any
	if done.Err != nil {
		errMsg = done.Err.Error()
	}

	started, err := s.startedAt(ctx, id)
	if err != nil {
		return err
	}
	elapsed := finished.Sub(started)
	if elapsed < 0 {
		elapsed = 0
	}

	_, err = s.execWithRetry(ctx,
		`UPDATE runs SET
            status = ?,
            error_message = ?,
            video_format = COALESCE(?, video_format),
            full_artifact = COALESCE(?, full_artifact),
            partition_artifact = COALESCE(?, partition_artifact),
            audio_attached = ?,
            subtitle_attached = ?,
            finished_at = ?,
            elapsed_ms = ?
        WHERE id = ?`,
		status,
		errMsg,
		nullIfEmpty(done.VideoFormat),
		nullIfEmpty(done.FullArtifact),
		nullIfEmpty(done.PartitionArtifact),
		boolToInt(done.AudioAttached),
		boolToInt(done.SubtitleAttached),
		formatTime(finished),
		elapsed.Milliseconds(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

func (s *Store) startedAt(ctx context.Context, id string) (time.Time, error) {
	var started sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx), "SELECT started_at FROM runs WHERE id = ?", id).Scan(&started)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, services.Wrap(services.ErrNotFound, "history", "finish run", "Run "+id+" is not recorded", nil)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return parseTime(started), nil
}

// RecordSegments upserts the worker outcomes of a run in one transaction.
func (s *Store) RecordSegments(ctx context.Context, runID string, segments []SegmentRecord) error {
	if len(segments) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin segments tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, seg := range segments {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO segments (
                    run_id, segment_index, status, exit_code, duration_ms, log_path, error_message
                ) VALUES (?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(run_id, segment_index) DO UPDATE SET
                    status = excluded.status,
                    exit_code = excluded.exit_code,
                    duration_ms = excluded.duration_ms,
                    log_path = excluded.log_path,
                    error_message = excluded.error_message`,
				runID,
				seg.Index,
				seg.Status,
				seg.ExitCode,
				seg.Duration.Milliseconds(),
				nullIfEmpty(seg.LogPath),
				nullIfEmpty(seg.ErrorMessage),
			); err != nil {
				return fmt.Errorf("record segment %d: %w", seg.Index, err)
			}
		}
		return tx.Commit()
	})
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns all rows.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun fetches a run by id. A unique id prefix is accepted so operators can
// paste the short form printed in console logs.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "history", "get run", "Run id is required", nil)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM runs WHERE substr(id, 1, length(?)) = ? ORDER BY id LIMIT 2",
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	defer rows.Close()

	var matches []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return &run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "history", "get run", "No run matches "+id, nil)
	case 1:
		return &matches[0], nil
	default:
		return nil, services.Wrap(services.ErrValidation, "history", "get run", "Run id prefix "+id+" is ambiguous", nil)
	}
}

// Segments returns the worker outcomes recorded for a run in index order.
func (s *Store) Segments(ctx context.Context, runID string) ([]SegmentRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT run_id, segment_index, status, exit_code, duration_ms, log_path, error_message
        FROM segments WHERE run_id = ? ORDER BY segment_index`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []SegmentRecord
	for rows.Next() {
		var (
			seg        SegmentRecord
			status     string
			durationMS int64
			logPath    sql.NullString
			errMsg     sql.NullString
		)
		if err := rows.Scan(&seg.RunID, &seg.Index, &status, &seg.ExitCode, &durationMS, &logPath, &errMsg); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.Status = Status(status)
		seg.Duration = time.Duration(durationMS) * time.Millisecond
		seg.LogPath = logPath.String
		seg.ErrorMessage = errMsg.String
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return out, nil
}

// Clear removes every recorded run and returns how many were deleted.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin clear tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, "DELETE FROM segments"); err != nil {
			return fmt.Errorf("clear segments: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM runs")
		if err != nil {
			return fmt.Errorf("clear runs: %w", err)
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		run          RunRecord
		format       sql.NullString
		full         sql.NullString
		partition    sql.NullString
		status       string
		errMsg       sql.NullString
		audio        int
		subtitle     int
		startedAt    sql.NullString
		finishedAt   sql.NullString
		elapsedMilli int64
	)
	if err := row.Scan(
		&run.ID,
		&run.InputPath,
		&run.OutputPath,
		&format,
		&run.Parallel,
		&run.Scale,
		&run.Adjust,
		&full,
		&partition,
		&status,
		&errMsg,
		&audio,
		&subtitle,
		&startedAt,
		&finishedAt,
		&elapsedMilli,
	); err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	run.VideoFormat = format.String
	run.FullArtifact = full.String
	run.PartitionArtifact = partition.String
	run.Status = Status(status)
	run.ErrorMessage = errMsg.String
	run.AudioAttached = audio != 0
	run.SubtitleAttached = subtitle != 0
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finishedAt)
	run.Elapsed = time.Duration(elapsedMilli) * time.Millisecond
	return run, nil
}
