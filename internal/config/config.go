package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkspaceDir string `toml:"workspace_dir"`
	ArtifactDir  string `toml:"artifact_dir"`
	LogDir       string `toml:"log_dir"`
}

// Run contains the default per-run parameters. CLI flags and --set
// overrides are applied on top of these.
type Run struct {
	Parallel         int     `toml:"parallel"`
	Scale            float64 `toml:"scale"`
	Adjust           int     `toml:"adjust"`
	PartitionOffsets []int   `toml:"partition_offsets"`
}

// Catalog controls how the artifact directory is scanned.
type Catalog struct {
	BaseArtifact    string `toml:"base_artifact"`
	ResolutionField int    `toml:"resolution_field"`
	Strict          bool   `toml:"strict"`
}

// Tools names the media binaries.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Inference describes the external command that upscales one segment.
type Inference struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// Generator describes the external command that produces missing artifacts.
type Generator struct {
	Command   string   `toml:"command"`
	Args      []string `toml:"args"`
	MaxWidth  int      `toml:"max_width"`
	MaxHeight int      `toml:"max_height"`
}

// Dispatch controls worker process fan-out.
type Dispatch struct {
	FailFast     bool   `toml:"fail_fast"`
	WorkerBinary string `toml:"worker_binary"`
}

// History controls the run ledger.
type History struct {
	Enabled bool `toml:"enabled"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidscale.
//
// Configuration sections by subsystem:
//   - Paths: scratch workspace, model artifacts, and logs
//   - Run: default parallelism and partition geometry
//   - Catalog: artifact filename parsing
//   - Tools: ffmpeg/ffprobe binaries
//   - Inference: per-segment upscaling command
//   - Generator: artifact generation command and its resolution limits
//   - Dispatch: worker process policy
//   - History: sqlite run ledger
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Run       Run       `toml:"run"`
	Catalog   Catalog   `toml:"catalog"`
	Tools     Tools     `toml:"tools"`
	Inference Inference `toml:"inference"`
	Generator Generator `toml:"generator"`
	Dispatch  Dispatch  `toml:"dispatch"`
	History   History   `toml:"history"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the workspace parent and log directories. The
// artifact directory is not created; a missing one is reported by the catalog.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Paths.WorkspaceDir), c.Paths.LogDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for demux, split, and concat.
func (c *Config) FFmpegBinary() string {
	if c == nil || strings.TrimSpace(c.Tools.FFmpeg) == "" {
		return defaultFFmpegBinary
	}
	return c.Tools.FFmpeg
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	if c == nil || strings.TrimSpace(c.Tools.FFprobe) == "" {
		return defaultFFprobeBinary
	}
	return c.Tools.FFprobe
}

// HistoryPath returns the sqlite ledger location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.LogDir, historyFileName)
}

// Offsets returns the configured partition offsets as a fixed triple.
func (c *Config) Offsets() [3]int {
	var out [3]int
	copy(out[:], c.Run.PartitionOffsets)
	return out
}

// RequireInference reports whether an inference command is configured. Only
// commands that dispatch workers need it, so Load does not enforce it.
func (c *Config) RequireInference() error {
	if strings.TrimSpace(c.Inference.Command) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("inference.command is required. Set %s or edit %s (create with 'vidscale config init')", envInferenceCommand, defaultPath)
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
