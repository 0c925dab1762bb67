package config

const (
	defaultConfigPath         = "~/.config/vidscale/config.toml"
	projectConfigName         = "vidscale.toml"
	defaultWorkspaceDir       = "~/.local/share/vidscale/tmp"
	defaultArtifactDir        = "~/.local/share/vidscale/weights"
	defaultLogDir             = "~/.local/share/vidscale/logs"
	historyFileName           = "history.db"
	defaultParallel           = 2
	defaultScale              = 2.0
	defaultAdjust             = 1
	defaultBaseArtifact       = "cunet_weight.pth"
	defaultResolutionField    = 4
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultGeneratorMaxWidth  = 1920
	defaultGeneratorMaxHeight = 1080
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"

	envInferenceCommand = "VIDSCALE_INFERENCE_COMMAND"
	envGeneratorCommand = "VIDSCALE_GENERATOR_COMMAND"
)

var (
	defaultPartitionOffsets = []int{2, -1, -1}
	defaultInferenceArgs    = []string{
		"--input", "{input}",
		"--output", "{output}",
		"--full", "{full_artifact}",
		"--partition", "{partition_artifact}",
		"--partition-height", "{partition_height}",
		"--scale", "{scale}",
		"--adjust", "{adjust}",
		"--offsets", "{offsets}",
		"--weights", "{artifact_dir}",
	}
	defaultGeneratorArgs = []string{
		"--height", "{height}",
		"--width", "{width}",
		"--output", "{artifact_dir}",
	}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir: defaultWorkspaceDir,
			ArtifactDir:  defaultArtifactDir,
			LogDir:       defaultLogDir,
		},
		Run: Run{
			Parallel:         defaultParallel,
			Scale:            defaultScale,
			Adjust:           defaultAdjust,
			PartitionOffsets: append([]int(nil), defaultPartitionOffsets...),
		},
		Catalog: Catalog{
			BaseArtifact:    defaultBaseArtifact,
			ResolutionField: defaultResolutionField,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Inference: Inference{
			Args: append([]string(nil), defaultInferenceArgs...),
		},
		Generator: Generator{
			Args:      append([]string(nil), defaultGeneratorArgs...),
			MaxWidth:  defaultGeneratorMaxWidth,
			MaxHeight: defaultGeneratorMaxHeight,
		},
		Dispatch: Dispatch{
			FailFast: true,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
