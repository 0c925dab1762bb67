package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRun()
	c.normalizeCatalog()
	c.normalizeTools()
	c.normalizeCommands()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = defaultArtifactDir
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRun() {
	if c.Run.PartitionOffsets == nil {
		c.Run.PartitionOffsets = append([]int(nil), defaultPartitionOffsets...)
	}
}

func (c *Config) normalizeCatalog() {
	c.Catalog.BaseArtifact = strings.TrimSpace(c.Catalog.BaseArtifact)
	if c.Catalog.BaseArtifact == "" {
		c.Catalog.BaseArtifact = defaultBaseArtifact
	}
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
}

func (c *Config) normalizeCommands() {
	c.Inference.Command = strings.TrimSpace(c.Inference.Command)
	if c.Inference.Command == "" {
		if value, ok := os.LookupEnv(envInferenceCommand); ok {
			c.Inference.Command = strings.TrimSpace(value)
		}
	}
	c.Generator.Command = strings.TrimSpace(c.Generator.Command)
	if c.Generator.Command == "" {
		if value, ok := os.LookupEnv(envGeneratorCommand); ok {
			c.Generator.Command = strings.TrimSpace(value)
		}
	}
	if c.Generator.MaxWidth == 0 {
		c.Generator.MaxWidth = defaultGeneratorMaxWidth
	}
	if c.Generator.MaxHeight == 0 {
		c.Generator.MaxHeight = defaultGeneratorMaxHeight
	}
	c.Dispatch.WorkerBinary = strings.TrimSpace(c.Dispatch.WorkerBinary)
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if format == "" {
		format = defaultLogFormat
	}
	c.Logging.Format = format

	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
}
