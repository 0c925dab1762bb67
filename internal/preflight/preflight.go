package preflight

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"vidscale/internal/config"
	"vidscale/internal/deps"
	"vidscale/internal/services"
)

// MinWorkspaceFreeBytes is the free space below which the workspace check fails.
// Segments are stream copies, so a run needs roughly three times the input size;
// this floor only catches nearly-full filesystems.
const MinWorkspaceFreeBytes = 1 << 30

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the filesystem checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	workspaceParent := filepath.Dir(cfg.Paths.WorkspaceDir)
	results := []Result{
		CheckDirectoryAccess("Workspace directory", workspaceParent),
		CheckFreeSpace("Workspace free space", workspaceParent, MinWorkspaceFreeBytes),
		CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir),
	}
	if strings.TrimSpace(cfg.Paths.LogDir) != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	return results
}

// CheckSystemDeps evaluates all external commands for the given config.
// Both the pipeline and the CLI doctor command use this to avoid duplicating
// the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Required for demuxing, segmenting and recombination",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Required for media inspection",
		},
		{
			Name:        "Inference",
			Command:     cfg.Inference.Command,
			Description: "Runs the per-segment upscaling model",
		},
		{
			Name:        "Generator",
			Command:     cfg.Generator.Command,
			Description: "Produces missing resolution artifacts",
			Optional:    true,
		},
	}
	return deps.CheckBinaries(requirements)
}

// Require fails with a precondition error when the media tools are missing or
// the artifact directory is unusable. Worker-side commands are checked by the
// workers themselves since they run in separate processes.
func Require(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return services.Wrap(services.ErrConfiguration, "preflight", "require", "Configuration is missing", nil)
	}
	tools := deps.CheckBinaries([]deps.Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary()},
		{Name: "FFprobe", Command: cfg.FFprobeBinary()},
	})
	if missing := deps.MissingRequired(tools); len(missing) > 0 {
		details := make([]string, 0, len(missing))
		for _, status := range missing {
			details = append(details, fmt.Sprintf("%s: %s", status.Name, status.Detail))
		}
		return services.Wrap(services.ErrPrecondition, "preflight", "check tools", strings.Join(details, "; "), nil)
	}
	if result := CheckDirectoryAccess("Artifact directory", cfg.Paths.ArtifactDir); !result.Passed {
		return services.Wrap(services.ErrPrecondition, "preflight", "check artifacts", result.Detail, nil)
	}
	return nil
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
