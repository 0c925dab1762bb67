package planner

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"vidscale/internal/logging"
	"vidscale/internal/mediatool"
)

// Generator produces model artifacts for one resolution.
type Generator interface {
	Generate(ctx context.Context, height, width int) error
}

// CommandGenerator runs an external artifact generator.
type CommandGenerator struct {
	Command     string
	Args        []string
	ArtifactDir string
	Runner      mediatool.Runner
	Logger      *slog.Logger
}

// Generate invokes the configured command with {height}, {width}, and
// {artifact_dir} substituted.
func (g *CommandGenerator) Generate(ctx context.Context, height, width int) error {
	if g == nil || strings.TrimSpace(g.Command) == "" {
		return errors.New("generator command not configured")
	}
	runner := g.Runner
	if runner == nil {
		runner = mediatool.ExecRunner{}
	}
	args := mediatool.ExpandArgs(g.Args, map[string]string{
		"height":       strconv.Itoa(height),
		"width":        strconv.Itoa(width),
		"artifact_dir": g.ArtifactDir,
	})

	logger := logging.NewComponentLogger(g.Logger, "generator")
	logger.Info("generating artifacts",
		logging.String(logging.FieldEventType, "artifact_generate_start"),
		logging.Int("width", width),
		logging.Int("height", height),
		logging.String("command", g.Command),
	)
	if _, err := runner.Run(ctx, g.Command, args...); err != nil {
		return err
	}
	logger.Info("artifacts generated",
		logging.String(logging.FieldEventType, "artifact_generate_complete"),
		logging.Int("width", width),
		logging.Int("height", height),
	)
	return nil
}
