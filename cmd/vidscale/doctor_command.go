package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidscale/internal/deps"
	"vidscale/internal/preflight"
	"vidscale/internal/services"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			problems := 0

			if ctx.configExists {
				fmt.Fprintf(out, "Config: %s\n\n", ctx.configPath)
			} else {
				fmt.Fprintln(out, "Config: defaults (no config file found)")
				fmt.Fprintln(out)
			}

			for _, line := range renderSectionHeader("Tools", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, status := range preflight.CheckSystemDeps(cfg) {
				kind, message := depStatusLine(status)
				if kind == statusError {
					problems++
				}
				fmt.Fprintln(out, renderStatusLine(status.Name, kind, message, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			problems += len(preflight.Failed(results))

			if problems > 0 {
				return services.Wrap(services.ErrPrecondition, "doctor", "check", fmt.Sprintf("%d problem(s) found", problems), nil)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func depStatusLine(status deps.Status) (statusKind, string) {
	switch {
	case status.Available:
		return statusOK, status.Resolved
	case status.Optional:
		return statusWarn, status.Detail + " (optional: " + status.Description + ")"
	default:
		return statusError, status.Detail + " (" + status.Description + ")"
	}
}
