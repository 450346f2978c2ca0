package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigFile represents the structure of a katana.yaml file. Zero values
// leave the corresponding setting untouched.
type ConfigFile struct {
	UnitDir    string   `yaml:"unitdir"`
	Units      []string `yaml:"units"`
	Threads    int      `yaml:"threads"`
	OutDir     string   `yaml:"outdir"`
	FlagFormat string   `yaml:"flag_format"`
	Auto       *bool    `yaml:"auto"`
	Depth      int      `yaml:"depth"`
	Exclude    []string `yaml:"exclude"`
	Force      *bool    `yaml:"force"`
}

// LoadFile reads a YAML config file and overlays it onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	file.ApplyTo(c)
	return nil
}

// ApplyTo overrides the settings of c that are set in the file.
func (f *ConfigFile) ApplyTo(c *Config) {
	if f.UnitDir != "" {
		c.UnitDir = f.UnitDir
	}
	if len(f.Units) > 0 {
		c.Units = append([]string(nil), f.Units...)
	}
	if f.Threads > 0 {
		c.Threads = f.Threads
	}
	if f.OutDir != "" {
		c.OutDir = f.OutDir
	}
	if f.FlagFormat != "" {
		c.FlagFormat = f.FlagFormat
	}
	if f.Auto != nil {
		c.Auto = *f.Auto
	}
	if f.Depth > 0 {
		c.MaxDepth = f.Depth
	}
	if len(f.Exclude) > 0 {
		c.Exclude = append([]string(nil), f.Exclude...)
	}
	if f.Force != nil {
		c.Force = *f.Force
	}
}
