// Package config loads the analysis run configuration: output location,
// symbol sources, and dump toggles (spec.md §6.3).
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// Config is the recognized set of options for one analysis run.
type Config struct {
	OutputDirectory string `yaml:"output-directory"`

	MapFiles     []string `yaml:"map-files"`
	MapDirectory string   `yaml:"map-directory"`

	DumpCallTree                bool `yaml:"dump-call-tree" default:"false"`
	IncludeMemoryAccessesInDump bool `yaml:"include-memory-accesses-in-dump" default:"true"`
}

// Load reads and validates a Config from a YAML file at path, applying
// defaults first the way the teacher's loadConfig does.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	type plain Config

	if err := yaml.Unmarshal(raw, (*plain)(cfg)); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the options spec.md §7 classifies as a fatal
// "configuration error".
func (c *Config) Validate() error {
	if c.OutputDirectory == "" {
		return fmt.Errorf("output-directory is required")
	}

	return nil
}
