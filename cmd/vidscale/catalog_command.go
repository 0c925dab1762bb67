package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidscale/internal/catalog"
	"vidscale/internal/logging"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the resolutions supported by the artifact directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat, issues, err := catalog.Build(cfg.Paths.ArtifactDir, catalog.Options{
				BaseArtifact: cfg.Catalog.BaseArtifact,
				Field:        cfg.Catalog.ResolutionField,
				Strict:       cfg.Catalog.Strict,
				Logger:       logging.NewNop(),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Artifact directory: %s\n", cfg.Paths.ArtifactDir)
			if cat.Len() == 0 {
				fmt.Fprintln(out, "No resolution artifacts found.")
			} else {
				rows := make([][]string, 0, len(cat.Widths()))
				for _, w := range cat.Widths() {
					heights := cat.Heights(w)
					labels := make([]string, 0, len(heights))
					for _, h := range heights {
						labels = append(labels, strconv.Itoa(h))
					}
					rows = append(rows, []string{strconv.Itoa(w), strings.Join(labels, ", "), strconv.Itoa(len(heights))})
				}
				fmt.Fprintln(out, renderTable([]string{"Width", "Heights", "Count"}, rows, []columnAlignment{alignRight, alignLeft, alignRight}))
			}
			if len(issues) > 0 {
				fmt.Fprintf(out, "Skipped %d file(s) with unparseable names:\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  %s: %v\n", issue.Name, issue.Err)
				}
			}
			return nil
		},
	}
}
