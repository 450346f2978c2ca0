// Package config holds the run configuration for katana.
//
// Values are layered: Default() first, then an optional YAML file
// (LoadFile), then KATANA_* environment variables (ApplyEnv), and finally
// command-line flags the user set explicitly.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutputFile is the name of the summary written into OutDir.
const OutputFile = "katana.json"

// StdinTarget is the target token meaning "read the target from stdin".
const StdinTarget = "-"

// Config holds the settings for one katana run.
type Config struct {
	// UnitDir is scanned for unit definitions (.yaml/.yml) and Go plugins
	// (.so). Empty means built-in units only.
	UnitDir string

	// Units are the unit names requested explicitly with --unit.
	Units []string

	// Threads is the number of workers. The work queue holds at most
	// 2*Threads items.
	Threads int

	// Force asks units to skip their applicability pre-checks.
	Force bool

	// Target is the effective target payload. The "-" token has already
	// been replaced with stdin contents by the time the engine sees it.
	Target string

	// OutDir must not exist before the run; katana.json is written into it.
	OutDir string

	// FlagFormat is the user's flag regex, e.g. `FLAG\{.*?\}`.
	FlagFormat string

	// Auto selects every applicable unit instead of only the requested ones.
	Auto bool

	// MaxDepth bounds the length of a unit's family tree.
	MaxDepth int

	// Exclude names units that are never scheduled.
	Exclude []string

	// Verbose logs per-worker activity.
	Verbose bool

	// Quiet suppresses the progress line.
	Quiet bool

	// MetricsAddr, when set, serves Prometheus metrics during the run.
	MetricsAddr string
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		UnitDir:  "./units",
		Threads:  10,
		OutDir:   "./results",
		MaxDepth: 5,
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1 (got %d)", c.Threads)
	}
	if c.Threads > 1024 {
		return fmt.Errorf("threads too large (got %d, max 1024)", c.Threads)
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("depth must be at least 1 (got %d)", c.MaxDepth)
	}
	if strings.TrimSpace(c.OutDir) == "" {
		return fmt.Errorf("outdir is required")
	}
	return nil
}

// QueueCapacity is the bound of the work queue.
func (c *Config) QueueCapacity() int {
	return 2 * c.Threads
}

// OutputPath returns the path of the summary file.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutDir, OutputFile)
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{UnitDir: %s, Units: %v, Threads: %d, Force: %t, OutDir: %s, "+
			"FlagFormat: %q, Auto: %t, MaxDepth: %d, Exclude: %v, Verbose: %t}",
		c.UnitDir, c.Units, c.Threads, c.Force, c.OutDir,
		c.FlagFormat, c.Auto, c.MaxDepth, c.Exclude, c.Verbose,
	)
}
