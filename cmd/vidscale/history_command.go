package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vidscale/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			fmt.Fprintln(out, renderRunTable(runs))
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its worker outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			segments, err := store.Segments(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			printRunDetail(cmd.OutOrStdout(), *run, segments)
			return nil
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
			return nil
		},
	}
}

func renderRunTable(runs []history.RunRecord) string {
	headers := []string{"Run", "Started", "Status", "Input", "Parallel", "Scale", "Elapsed"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			formatTimestamp(run.StartedAt),
			string(run.Status),
			filepath.Base(run.InputPath),
			strconv.Itoa(run.Parallel),
			strconv.FormatFloat(run.Scale, 'f', -1, 64),
			formatElapsed(run),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight})
}

func printRunDetail(out io.Writer, run history.RunRecord, segments []history.SegmentRecord) {
	rows := [][]string{
		{"Run ID", run.ID},
		{"Status", string(run.Status)},
		{"Input", run.InputPath},
		{"Output", run.OutputPath},
		{"Format", run.VideoFormat},
		{"Parallel", strconv.Itoa(run.Parallel)},
		{"Scale", strconv.FormatFloat(run.Scale, 'f', -1, 64)},
		{"Adjust", strconv.Itoa(run.Adjust)},
		{"Full-frame artifact", run.FullArtifact},
		{"Partition artifact", run.PartitionArtifact},
		{"Audio", yesNo(run.AudioAttached)},
		{"Subtitles", yesNo(run.SubtitleAttached)},
		{"Started", formatTimestamp(run.StartedAt)},
		{"Finished", formatTimestamp(run.FinishedAt)},
		{"Elapsed", formatElapsed(run)},
	}
	if run.ErrorMessage != "" {
		rows = append(rows, []string{"Error", run.ErrorMessage})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

	if len(segments) == 0 {
		return
	}
	segRows := make([][]string, 0, len(segments))
	for _, seg := range segments {
		segRows = append(segRows, []string{
			strconv.Itoa(seg.Index),
			string(seg.Status),
			strconv.Itoa(seg.ExitCode),
			seg.Duration.Round(time.Millisecond).String(),
			seg.LogPath,
		})
	}
	fmt.Fprintln(out, renderTable([]string{"Segment", "Status", "Exit", "Duration", "Log"}, segRows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft}))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatElapsed(run history.RunRecord) string {
	if !run.Finished() {
		return "-"
	}
	return run.Elapsed.Round(time.Second).String()
}
