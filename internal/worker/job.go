package worker

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"vidscale/internal/fileutil"
	"vidscale/internal/runconfig"
	"vidscale/internal/services"
)

// Command is an external program with templated arguments.
type Command struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
}

// LogSettings mirrors the coordinator's logging configuration.
type LogSettings struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Job is everything a worker process needs to upscale one segment. It is
// written by the dispatcher and read back by the worker subcommand.
type Job struct {
	Index       int              `toml:"index"`
	RunID       string           `toml:"run_id"`
	ArtifactDir string           `toml:"artifact_dir"`
	Params      runconfig.Params `toml:"params"`
	Inference   Command          `toml:"inference"`
	Logging     LogSettings      `toml:"logging"`
}

// WriteJob serializes job to path.
func WriteJob(path string, job Job) error {
	data, err := toml.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write job %s: %w", path, err)
	}
	return nil
}

// LoadJob reads a job file, rejecting unknown keys so a stale or mismatched
// binary fails loudly instead of running with defaults.
func LoadJob(path string) (Job, error) {
	file, err := os.Open(path)
	if err != nil {
		return Job{}, services.Wrap(services.ErrConfiguration, "worker", "load job", path, err)
	}
	defer file.Close()

	var job Job
	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(&job); err != nil {
		return Job{}, services.Wrap(services.ErrConfiguration, "worker", "decode job", path, err)
	}
	return job, nil
}
