package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidscale/internal/catalog"
	"vidscale/internal/config"
	"vidscale/internal/logging"
	"vidscale/internal/media/ffprobe"
	"vidscale/internal/pipeline"
	"vidscale/internal/planner"
	"vidscale/internal/services"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var (
		params paramFlags
		width  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "plan [input]",
		Short: "Show the partition plan and artifact coverage for a source",
		Long: "Compute the effective resolution, partition height and artifact identifiers " +
			"for an input file (probed with ffprobe) or an explicit --width/--height, " +
			"without generating artifacts or running workers.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			input := ""
			if len(args) == 1 {
				if input, err = config.ExpandPath(args[0]); err != nil {
					return fmt.Errorf("resolve input path: %w", err)
				}
			}
			if width <= 0 || height <= 0 {
				if input == "" {
					return services.Wrap(services.ErrValidation, "plan", "resolve source", "pass an input file or --width and --height", nil)
				}
				probe, err := ffprobe.Inspect(cmd.Context(), cfg.FFprobeBinary(), input)
				if err != nil {
					return services.Wrap(services.ErrExternalTool, "plan", "ffprobe", input, err)
				}
				width, height = probe.Dimensions()
			}

			req := pipeline.Request{InputPath: input, OutputPath: "-", Overrides: params.overrides(cmd)}
			runParams, err := pipeline.BaseParams(cfg, req)
			if err != nil {
				return err
			}

			p := planner.New(cfg.Paths.ArtifactDir, catalog.Options{
				BaseArtifact: cfg.Catalog.BaseArtifact,
				Field:        cfg.Catalog.ResolutionField,
				Strict:       cfg.Catalog.Strict,
				Logger:       logging.NewNop(),
			}, planner.WithLimits(planner.Limits{MaxWidth: cfg.Generator.MaxWidth, MaxHeight: cfg.Generator.MaxHeight}))
			plan, cat, err := p.Plan(width, height, runParams)
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Source", fmt.Sprintf("%dx%d", plan.SourceWidth, plan.SourceHeight)},
				{"Scale", strconv.FormatFloat(runParams.Scale, 'f', -1, 64)},
				{"Effective", fmt.Sprintf("%dx%d", plan.EffectiveWidth, plan.EffectiveHeight)},
				{"Partition height", strconv.Itoa(plan.PartitionHeight)},
				{"Full-frame artifact", artifactCell(cat, plan.EffectiveWidth, plan.EffectiveHeight, plan.FullFrameArtifact)},
				{"Partition artifact", artifactCell(cat, plan.EffectiveWidth, plan.PartitionHeight, plan.PartitionFrameArtifact)},
				{"Needs generation", yesNo(plan.NeedsGeneration)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			if plan.NeedsGeneration &&
				(plan.EffectiveWidth > cfg.Generator.MaxWidth || plan.EffectiveHeight > cfg.Generator.MaxHeight) {
				fmt.Fprintf(cmd.OutOrStdout(), "Effective resolution exceeds the generator limit of %dx%d; run would fail.\n",
					cfg.Generator.MaxWidth, cfg.Generator.MaxHeight)
			}
			return nil
		},
	}

	params.bind(cmd)
	cmd.Flags().IntVar(&width, "width", 0, "Source width (skips ffprobe)")
	cmd.Flags().IntVar(&height, "height", 0, "Source height (skips ffprobe)")
	return cmd
}

func artifactCell(cat catalog.Catalog, width, height int, name string) string {
	if cat.Has(width, height) {
		return name + " (present)"
	}
	return name + " (missing)"
}
