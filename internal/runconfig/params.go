package runconfig

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"vidscale/internal/services"
)

// ErrUnknownParameter is returned by Set for names that are not run parameters.
var ErrUnknownParameter = fmt.Errorf("%w: unknown run parameter", services.ErrValidation)

// Params is the per-run parameter record. It is a plain value: copies are
// independent, including the offsets array.
type Params struct {
	InputPath              string  `toml:"input_path"`
	OutputPath             string  `toml:"output_path"`
	Scale                  float64 `toml:"scale"`
	Adjust                 int     `toml:"adjust"`
	PartitionOffsets       [3]int  `toml:"partition_offsets"`
	VideoFormat            string  `toml:"video_format"`
	FullFrameArtifact      string  `toml:"full_frame_artifact"`
	PartitionFrameArtifact string  `toml:"partition_frame_artifact"`
	PartitionHeight        int     `toml:"partition_height"`
}

type setter func(p *Params, value string) error

var setters = map[string]setter{
	"input_path": func(p *Params, v string) error {
		p.InputPath = strings.TrimSpace(v)
		return nil
	},
	"output_path": func(p *Params, v string) error {
		p.OutputPath = strings.TrimSpace(v)
		return nil
	},
	"scale": func(p *Params, v string) error {
		scale, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
			return errors.New("must be a positive number")
		}
		p.Scale = scale
		return nil
	},
	"adjust": func(p *Params, v string) error {
		adjust, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		p.Adjust = adjust
		return nil
	},
	"partition_offsets": func(p *Params, v string) error {
		offsets, err := ParseOffsets(v)
		if err != nil {
			return err
		}
		p.PartitionOffsets = offsets
		return nil
	},
	"video_format": func(p *Params, v string) error {
		p.VideoFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "."))
		return nil
	},
	"full_frame_artifact": func(p *Params, v string) error {
		p.FullFrameArtifact = strings.TrimSpace(v)
		return nil
	},
	"partition_frame_artifact": func(p *Params, v string) error {
		p.PartitionFrameArtifact = strings.TrimSpace(v)
		return nil
	},
	"partition_height": func(p *Params, v string) error {
		height, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		if height <= 0 {
			return errors.New("must be positive")
		}
		p.PartitionHeight = height
		return nil
	},
}

// Names lists every parameter accepted by Set.
func Names() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set overrides a single named parameter from its string form.
func (p *Params) Set(name, value string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	apply, ok := setters[key]
	if !ok {
		return fmt.Errorf("%w %q (known: %s)", ErrUnknownParameter, name, strings.Join(Names(), ", "))
	}
	if err := apply(p, value); err != nil {
		return services.Wrap(services.ErrValidation, "config", "set "+key, fmt.Sprintf("invalid value %q", value), err)
	}
	return nil
}

// ApplyOverrides applies name=value pairs in order.
func (p *Params) ApplyOverrides(pairs []string) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return services.Wrap(services.ErrValidation, "config", "parse override", fmt.Sprintf("expected name=value, got %q", pair), nil)
		}
		if err := p.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// WithSegment returns a copy bound to one segment's input and output files.
func (p Params) WithSegment(inputPath, outputPath string) Params {
	p.InputPath = inputPath
	p.OutputPath = outputPath
	return p
}

// WithPlan returns a copy carrying the artifact identifiers and partition height.
func (p Params) WithPlan(fullFrame, partitionFrame string, partitionHeight int) Params {
	p.FullFrameArtifact = fullFrame
	p.PartitionFrameArtifact = partitionFrame
	p.PartitionHeight = partitionHeight
	return p
}

// RequireInput fails unless InputPath names an existing regular file.
func (p Params) RequireInput() error {
	if strings.TrimSpace(p.InputPath) == "" {
		return services.Wrap(services.ErrPrecondition, "input", "require input", "no input path set", nil)
	}
	info, err := os.Stat(p.InputPath)
	if err != nil {
		return services.Wrap(services.ErrPrecondition, "input", "require input", fmt.Sprintf("no such file %s", p.InputPath), err)
	}
	if !info.Mode().IsRegular() {
		return services.Wrap(services.ErrPrecondition, "input", "require input", fmt.Sprintf("%s is not a regular file", p.InputPath), nil)
	}
	return nil
}

// OffsetsString renders offsets as "a,b,c".
func (p Params) OffsetsString() string {
	parts := make([]string, len(p.PartitionOffsets))
	for i, v := range p.PartitionOffsets {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// ParseOffsets reads exactly three comma-separated integers.
func ParseOffsets(value string) ([3]int, error) {
	var out [3]int
	fields := strings.Split(strings.Trim(strings.TrimSpace(value), "[]"), ",")
	if len(fields) != len(out) {
		return out, fmt.Errorf("expected 3 comma-separated integers, got %d", len(fields))
	}
	for i, field := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return out, fmt.Errorf("offset %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
