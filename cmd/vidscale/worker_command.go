package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vidscale/internal/logging"
	"vidscale/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	var jobPath string

	cmd := &cobra.Command{
		Use:         "worker",
		Short:       "Upscale one segment from a job file (launched by run)",
		Hidden:      true,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := worker.LoadJob(jobPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{
				Level:  job.Logging.Level,
				Format: job.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := worker.Run(ctx, job, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "segment %d upscaled in %s: %s\n", report.Index, report.Elapsed, report.OutputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobPath, "job", "", "Path to the segment job file")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
