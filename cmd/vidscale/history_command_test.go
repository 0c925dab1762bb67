package main

import (
	"errors"
	"testing"
	"time"

	"vidscale/internal/history"
	"vidscale/internal/services"
	"vidscale/internal/testsupport"
)

func TestHistoryCommandsEmptyLedger(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No runs recorded.")

	_, _, err = runCLI(t, []string{"history", "show", "abc"}, env.configPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHistoryListShowAndClear(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenHistory(t, env.cfg)
	ctx := t.Context()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := history.RunRecord{
		ID:         "3f2c9a10-aaaa-bbbb-cccc-000000000001",
		InputPath:  "/media/clip.mp4",
		OutputPath: "/media/clip_2x.mp4",
		Parallel:   2,
		Scale:      2,
		Adjust:     1,
		StartedAt:  started,
	}
	if err := store.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := store.RecordSegments(ctx, run.ID, []history.SegmentRecord{
		{Index: 0, Status: history.StatusSucceeded, Duration: 1500 * time.Millisecond, LogPath: "/tmp/part0.log"},
		{Index: 1, Status: history.StatusFailed, ExitCode: 3, LogPath: "/tmp/part1.log"},
	}); err != nil {
		t.Fatalf("RecordSegments: %v", err)
	}
	if err := store.FinishRun(ctx, run.ID, history.Completion{
		Err:               services.Wrap(services.ErrWorker, "upscale", "dispatch", "segment 1 failed", nil),
		FullArtifact:      "1280X720",
		PartitionArtifact: "1280X243",
		VideoFormat:       "mp4",
		FinishedAt:        started.Add(90 * time.Second),
	}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "3f2c9a10")
	requireContains(t, out, "failed")
	requireContains(t, out, "clip.mp4")
	requireContains(t, out, "1m30s")

	out, _, err = runCLI(t, []string{"history", "show", "3f2c"}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, run.ID)
	requireContains(t, out, "1280X243")
	requireContains(t, out, "segment 1 failed")
	requireContains(t, out, "/tmp/part1.log")
	requireContains(t, out, "1.5s")

	out, _, err = runCLI(t, []string{"history", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Removed 1 run(s)")

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history after clear: %v", err)
	}
	requireContains(t, out, "No runs recorded.")
}

func TestFormatHelpers(t *testing.T) {
	if got := shortID("0123456789"); got != "01234567" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID short = %q", got)
	}
	if got := formatTimestamp(time.Time{}); got != "-" {
		t.Fatalf("formatTimestamp zero = %q", got)
	}
	running := history.RunRecord{Status: history.StatusRunning, Elapsed: time.Minute}
	if got := formatElapsed(running); got != "-" {
		t.Fatalf("formatElapsed running = %q", got)
	}
	done := history.RunRecord{Status: history.StatusSucceeded, Elapsed: 61500 * time.Millisecond}
	if got := formatElapsed(done); got != "1m2s" {
		t.Fatalf("formatElapsed done = %q", got)
	}
}
