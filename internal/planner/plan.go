package planner

import (
	"fmt"
	"math"
	"strconv"

	"vidscale/internal/runconfig"
	"vidscale/internal/services"
)

// PartitionPlan is the resolution-aware partitioning scheme for one run.
type PartitionPlan struct {
	SourceWidth            int
	SourceHeight           int
	EffectiveWidth         int
	EffectiveHeight        int
	PartitionHeight        int
	FullFrameArtifact      string
	PartitionFrameArtifact string
	NeedsGeneration        bool
}

// Apply returns params carrying the plan's artifact identifiers.
func (p PartitionPlan) Apply(params runconfig.Params) runconfig.Params {
	return params.WithPlan(p.FullFrameArtifact, p.PartitionFrameArtifact, p.PartitionHeight)
}

// Compute derives the effective resolution, partition height, and artifact
// identifiers. It does not consult the artifact directory.
//
// A scale of 2 keeps the source resolution. Any other scale shrinks (or
// grows) the frame by scale/2 first so the fixed 2x model yields the
// requested overall factor.
func Compute(width, height int, scale float64, adjust, offset0 int) (PartitionPlan, error) {
	if width <= 0 || height <= 0 {
		return PartitionPlan{}, services.Wrap(services.ErrValidation, "plan", "compute", fmt.Sprintf("invalid source resolution %dx%d", width, height), nil)
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return PartitionPlan{}, services.Wrap(services.ErrValidation, "plan", "compute", fmt.Sprintf("invalid scale %v", scale), nil)
	}

	w, h := width, height
	if scale != 2 {
		w = int(math.Round(float64(width) * scale / 2))
		h = int(math.Round(float64(height) * scale / 2))
	}
	if w <= 0 || h <= 0 {
		return PartitionPlan{}, services.Wrap(services.ErrValidation, "plan", "compute", fmt.Sprintf("scale %v collapses %dx%d to %dx%d", scale, width, height, w, h), nil)
	}

	partition := h/3 + adjust + absInt(offset0)
	if partition <= 0 {
		return PartitionPlan{}, services.Wrap(services.ErrValidation, "plan", "compute", fmt.Sprintf("partition height %d is not positive (height %d, adjust %d, offset %d)", partition, h, adjust, offset0), nil)
	}

	return PartitionPlan{
		SourceWidth:            width,
		SourceHeight:           height,
		EffectiveWidth:         w,
		EffectiveHeight:        h,
		PartitionHeight:        partition,
		FullFrameArtifact:      artifactName(w, h),
		PartitionFrameArtifact: artifactName(w, partition),
	}, nil
}

func artifactName(width, height int) string {
	return strconv.Itoa(width) + "X" + strconv.Itoa(height)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
