package config

import (
	"errors"
	"fmt"
	"math"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRun(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateGenerator(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Run.Parallel < 1 {
		return errors.New("run.parallel must be at least 1")
	}
	if c.Run.Scale <= 0 || math.IsNaN(c.Run.Scale) || math.IsInf(c.Run.Scale, 0) {
		return errors.New("run.scale must be a positive number")
	}
	if len(c.Run.PartitionOffsets) != 3 {
		return fmt.Errorf("run.partition_offsets must have exactly 3 entries, got %d", len(c.Run.PartitionOffsets))
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.ResolutionField < 1 {
		return errors.New("catalog.resolution_field must be at least 1")
	}
	return nil
}

func (c *Config) validateGenerator() error {
	return ensurePositiveMap(map[string]int{
		"generator.max_width":  c.Generator.MaxWidth,
		"generator.max_height": c.Generator.MaxHeight,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (expected console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
