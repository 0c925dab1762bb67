package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidscale/internal/config"
	"vidscale/internal/dispatch"
	"vidscale/internal/fileutil"
	"vidscale/internal/logging"
	"vidscale/internal/pipeline"
	"vidscale/internal/services"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981"))
	failureStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
)

// errOverwriteDeclined is returned when the user refuses to replace the output.
var errOverwriteDeclined = fmt.Errorf("%w: existing output kept", services.ErrPrecondition)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		params       paramFlags
		parallel     int
		assumeYes    bool
		noHistory    bool
		workerBinary string
	)

	cmd := &cobra.Command{
		Use:   "run <input> <output>",
		Short: "Upscale a video by splitting it across parallel workers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			input, output, err := resolveRunPaths(args[0], args[1])
			if err != nil {
				return err
			}
			if fileutil.FileExists(output) && !assumeYes && stdinIsTerminal() {
				if !confirmOverwrite(output) {
					return errOverwriteDeclined
				}
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			opts := []pipeline.Option{pipeline.WithLogger(logger)}
			if workerBinary != "" {
				opts = append(opts, pipeline.WithWorkerBinary(workerBinary))
			}
			if cfg.History.Enabled && !noHistory {
				store, err := ctx.openHistory()
				if err != nil {
					logging.WarnWithContext(logger, "history unavailable", "history_open_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "delete "+cfg.HistoryPath()+" if the schema changed"),
						logging.String(logging.FieldImpact, "this run will not be recorded"),
					)
				} else {
					defer store.Close()
					opts = append(opts, pipeline.WithHistory(store))
				}
			}

			req := pipeline.Request{
				InputPath:  input,
				OutputPath: output,
				Parallel:   parallel,
				Overrides:  params.overrides(cmd),
			}
			errOut := cmd.ErrOrStderr()
			workers := parallel
			if workers < 1 {
				workers = cfg.Run.Parallel
			}
			bar := newWorkerProgress(errOut, workers)
			if bar != nil {
				opts = append(opts, pipeline.WithOnWorkerDone(func(dispatch.WorkerResult) { _ = bar.Add(1) }))
			}
			p := pipeline.New(cfg, opts...)

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, runErr := p.Run(runCtx, req)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(errOut)
			}
			printRunSummary(cmd.OutOrStdout(), cfg, result, runErr)
			return runErr
		},
	}

	params.bind(cmd)
	cmd.Flags().IntVarP(&parallel, "parallel", "j", 0, "Number of segments and worker processes (default run.parallel)")
	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Replace an existing output without asking")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record this run in the history ledger")
	cmd.Flags().StringVar(&workerBinary, "worker-binary", "", "Executable to launch as the worker (default: this binary)")
	return cmd
}

func resolveRunPaths(input, output string) (string, string, error) {
	in, err := config.ExpandPath(input)
	if err != nil {
		return "", "", fmt.Errorf("resolve input path: %w", err)
	}
	out, err := config.ExpandPath(output)
	if err != nil {
		return "", "", fmt.Errorf("resolve output path: %w", err)
	}
	if in, err = filepath.Abs(in); err != nil {
		return "", "", fmt.Errorf("resolve input path: %w", err)
	}
	if out, err = filepath.Abs(out); err != nil {
		return "", "", fmt.Errorf("resolve output path: %w", err)
	}
	if in == out {
		return "", "", services.Wrap(services.ErrValidation, "run", "resolve paths", "input and output must differ", nil)
	}
	return in, out, nil
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func confirmOverwrite(path string) bool {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s exists. Replace it", filepath.Base(path)),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}

func newWorkerProgress(w io.Writer, workers int) *progressbar.ProgressBar {
	if !shouldColorize(w) || workers < 1 {
		return nil
	}
	return progressbar.NewOptions(workers,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Upscaling segments"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printRunSummary(out io.Writer, cfg *config.Config, result pipeline.Result, runErr error) {
	colorize := shouldColorize(out)
	headline := runHeadline(result, runErr)
	if colorize {
		style := successStyle
		if runErr != nil {
			style = failureStyle
		}
		headline = style.Render(headline)
	}
	fmt.Fprintln(out, headline)

	if result.Plan.FullFrameArtifact != "" {
		fmt.Fprintf(out, "Plan: %dx%d -> %dx%d, partition height %d (%s, %s)\n",
			result.SourceWidth, result.SourceHeight,
			result.Plan.EffectiveWidth, result.Plan.EffectiveHeight,
			result.Plan.PartitionHeight,
			result.Plan.FullFrameArtifact, result.Plan.PartitionFrameArtifact,
		)
	}
	if len(result.Workers.Results) > 0 {
		fmt.Fprintln(out, renderWorkerTable(result.Workers))
	}
	if runErr == nil {
		fmt.Fprintf(out, "Audio: %s  Subtitles: %s  Elapsed: %s\n",
			yesNo(result.AudioAttached), yesNo(result.SubtitleAttached), result.Elapsed.Round(time.Second))
	}
	if result.RunID != "" && cfg != nil && cfg.History.Enabled {
		fmt.Fprintf(out, "Run ID: %s\n", result.RunID)
	}
}

func runHeadline(result pipeline.Result, runErr error) string {
	if runErr == nil {
		return fmt.Sprintf("Upscaled %s", result.Params.OutputPath)
	}
	if errors.Is(runErr, context.Canceled) {
		return "Run interrupted"
	}
	stage := "Run"
	if result.FailedStage != "" {
		stage = cases.Title(language.English).String(result.FailedStage) + " stage"
	}
	return fmt.Sprintf("%s failed (exit %d)", stage, services.ExitCode(runErr))
}

func renderWorkerTable(outcome dispatch.Outcome) string {
	headers := []string{"Segment", "Status", "Exit", "Duration", "Log"}
	rows := make([][]string, 0, len(outcome.Results))
	for _, r := range outcome.Results {
		status := "ok"
		switch {
		case r.Canceled:
			status = "canceled"
		case !r.OK():
			status = "failed"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index),
			status,
			strconv.Itoa(r.ExitCode),
			r.Duration.Round(time.Millisecond).String(),
			r.LogPath,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft})
}
