package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"vidscale/internal/logging"
	"vidscale/internal/runconfig"
	"vidscale/internal/segmenter"
	"vidscale/internal/services"
	"vidscale/internal/worker"
	"vidscale/internal/workspace"
)

// terminateGrace is how long a cancelled worker gets to exit after SIGTERM
// before it is killed.
const terminateGrace = 10 * time.Second

// WorkerResult is the outcome of one worker process.
type WorkerResult struct {
	Index    int
	ExitCode int
	Duration time.Duration
	LogPath  string
	Canceled bool
	Err      error
}

// OK reports whether the worker exited cleanly.
func (r WorkerResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Outcome collects every worker result in index order.
type Outcome struct {
	Results []WorkerResult
	Elapsed time.Duration
}

// Failed returns the results of workers that did not succeed.
func (o Outcome) Failed() []WorkerResult {
	var out []WorkerResult
	for _, r := range o.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// WorkerError aggregates failed workers. It matches services.ErrWorker.
type WorkerError struct {
	Failed []WorkerResult
}

func (e *WorkerError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		switch {
		case r.Canceled:
			parts = append(parts, fmt.Sprintf("segment %d canceled", r.Index))
		case r.Err != nil && r.ExitCode < 0:
			parts = append(parts, fmt.Sprintf("segment %d: %v", r.Index, r.Err))
		default:
			parts = append(parts, fmt.Sprintf("segment %d exited %d (see %s)", r.Index, r.ExitCode, r.LogPath))
		}
	}
	return fmt.Sprintf("%d worker(s) failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// Unwrap lets errors.Is match services.ErrWorker.
func (e *WorkerError) Unwrap() error {
	return services.ErrWorker
}

// JobTemplate carries the fields every worker job shares.
type JobTemplate struct {
	ArtifactDir string
	Inference   worker.Command
	Logging     worker.LogSettings
}

// Dispatcher launches one worker process per present segment and waits for
// all of them.
type Dispatcher struct {
	ws         *workspace.Workspace
	template   JobTemplate
	binary     string
	failFast   bool
	onDone     func(WorkerResult)
	logger     *slog.Logger
	executable func() (string, error)
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithWorkerBinary overrides the worker executable. It is invoked as
// "<binary> worker --job <path>".
func WithWorkerBinary(path string) Option {
	return func(d *Dispatcher) { d.binary = strings.TrimSpace(path) }
}

// WithFailFast controls whether the first failure cancels the other workers.
func WithFailFast(enabled bool) Option {
	return func(d *Dispatcher) { d.failFast = enabled }
}

// WithOnWorkerDone registers a callback invoked as each worker exits.
// Calls are serialized.
func WithOnWorkerDone(fn func(WorkerResult)) Option {
	return func(d *Dispatcher) { d.onDone = fn }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// New constructs a Dispatcher. Fail-fast is on by default.
func New(ws *workspace.Workspace, template JobTemplate, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ws:         ws,
		template:   template,
		failFast:   true,
		executable: os.Executable,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.logger, "dispatch")
	return d
}

// Dispatch writes a job file per present segment, runs the workers in
// parallel, and blocks until every one has exited. Any failure yields a
// *WorkerError alongside the full Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, segments []segmenter.Descriptor, base runconfig.Params) (Outcome, error) {
	start := time.Now()
	logger := logging.WithContext(ctx, d.logger)

	binary, err := d.workerBinary()
	if err != nil {
		return Outcome{}, err
	}

	present := segmenter.PresentOnly(segments)
	if len(present) == 0 {
		return Outcome{}, services.Wrap(services.ErrWorker, "dispatch", "launch", "no segments to dispatch", nil)
	}

	runID, _ := services.RunIDFromContext(ctx)
	jobs := make([]string, len(present))
	for i, seg := range present {
		job := worker.Job{
			Index:       seg.Index,
			RunID:       runID,
			ArtifactDir: d.template.ArtifactDir,
			Params:      base.WithSegment(seg.InputPath, seg.OutputPath),
			Inference:   d.template.Inference,
			Logging:     d.template.Logging,
		}
		jobs[i] = d.ws.JobPath(seg.Index)
		if err := worker.WriteJob(jobs[i], job); err != nil {
			return Outcome{}, services.Wrap(services.ErrWorker, "dispatch", "write job", fmt.Sprintf("segment %d", seg.Index), err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]WorkerResult, 0, len(present))
	)
	record := func(r WorkerResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
		if !r.OK() && d.failFast {
			cancel()
		}
		d.logResult(logger, r)
		if d.onDone != nil {
			d.onDone(r)
		}
	}

	for i, seg := range present {
		wg.Add(1)
		go func(index int, jobPath string) {
			defer wg.Done()
			record(d.runWorker(runCtx, binary, index, jobPath))
		}(seg.Index, jobs[i])
	}
	logger.Info("workers launched",
		logging.String(logging.FieldEventType, "workers_launched"),
		logging.Int("workers", len(present)),
		logging.String("binary", binary),
		logging.Bool("fail_fast", d.failFast),
	)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	outcome := Outcome{Results: results, Elapsed: time.Since(start)}
	if failed := outcome.Failed(); len(failed) > 0 {
		return outcome, &WorkerError{Failed: failed}
	}
	return outcome, nil
}

func (d *Dispatcher) runWorker(ctx context.Context, binary string, index int, jobPath string) WorkerResult {
	result := WorkerResult{Index: index, ExitCode: -1, LogPath: d.ws.WorkerLogPath(index)}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	if err := ctx.Err(); err != nil {
		result.Canceled = true
		result.Err = err
		return result
	}

	logFile, err := os.OpenFile(result.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		result.Err = fmt.Errorf("open worker log: %w", err)
		return result
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, binary, "worker", "--job", jobPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = terminateGrace

	err = cmd.Run()
	result.Duration = time.Since(start)
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return result
	}
	if ctx.Err() != nil {
		result.Canceled = true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.Err = fmt.Errorf("worker exited %d: %w", exitErr.ExitCode(), err)
		return result
	}
	result.Err = err
	return result
}

func (d *Dispatcher) workerBinary() (string, error) {
	if d.binary != "" {
		return d.binary, nil
	}
	exe, err := d.executable()
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "dispatch", "resolve worker binary", "set dispatch.worker_binary", err)
	}
	return exe, nil
}

func (d *Dispatcher) logResult(logger *slog.Logger, r WorkerResult) {
	attrs := []logging.Attr{
		logging.Int(logging.FieldSegment, r.Index),
		logging.Int("exit_code", r.ExitCode),
		logging.Duration("duration", r.Duration),
		logging.String("log_path", r.LogPath),
	}
	switch {
	case r.OK():
		logger.Info("worker finished", logging.Args(append(attrs, logging.String(logging.FieldEventType, "worker_complete"))...)...)
	case r.Canceled:
		logging.WarnWithContext(logger, "worker canceled", "worker_canceled", append(attrs,
			logging.String(logging.FieldErrorHint, "another segment failed first"),
			logging.String(logging.FieldImpact, "segment not upscaled"),
		)...)
	default:
		logging.ErrorWithContext(logger, "worker failed", "worker_failed", append(attrs,
			logging.Error(r.Err),
			logging.String(logging.FieldErrorHint, "inspect "+r.LogPath),
		)...)
	}
}
