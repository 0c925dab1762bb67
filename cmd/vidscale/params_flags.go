package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// paramFlags are the run parameter flags shared by run and plan. Each one is
// forwarded as a name=value override so validation lives in runconfig.
type paramFlags struct {
	scale   float64
	adjust  int
	offsets string
	set     []string
}

func (f *paramFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.scale, "scale", 2, "Overall scale factor (2 keeps the 2x model output)")
	cmd.Flags().IntVar(&f.adjust, "adjust", 1, "Extra rows added to each partition")
	cmd.Flags().StringVar(&f.offsets, "offsets", "", "Partition offsets as a,b,c")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "Override a run parameter (name=value, repeatable)")
}

// overrides returns the explicitly set flags as name=value pairs, followed by
// the raw --set values so they win.
func (f *paramFlags) overrides(cmd *cobra.Command) []string {
	var out []string
	if cmd.Flags().Changed("scale") {
		out = append(out, "scale="+strconv.FormatFloat(f.scale, 'f', -1, 64))
	}
	if cmd.Flags().Changed("adjust") {
		out = append(out, "adjust="+strconv.Itoa(f.adjust))
	}
	if cmd.Flags().Changed("offsets") {
		out = append(out, "partition_offsets="+strings.TrimSpace(f.offsets))
	}
	return append(out, f.set...)
}
