package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/katana/internal/config"
)

var (
	flagUnitDir     string
	flagUnits       []string
	flagThreads     int
	flagForce       bool
	flagOutDir      string
	flagFlagFormat  string
	flagAuto        bool
	flagDepth       int
	flagExclude     []string
	flagVerbose     bool
	flagQuiet       bool
	flagConfig      string
	flagMetricsAddr string
)

func init() {
	defaults := config.Default()

	rootCmd.PersistentFlags().StringVar(&flagUnitDir, "unitdir", defaults.UnitDir, "Directory holding unit definitions and plugins")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "YAML config file")

	f := rootCmd.Flags()
	f.StringArrayVarP(&flagUnits, "unit", "u", nil, "Run this unit (repeatable)")
	f.IntVarP(&flagThreads, "threads", "t", defaults.Threads, "Number of worker threads")
	f.BoolVarP(&flagForce, "force", "f", false, "Skip unit applicability checks")
	f.StringVarP(&flagOutDir, "outdir", "o", defaults.OutDir, "Output directory (must not exist)")
	f.StringVar(&flagFlagFormat, "flag-format", "", "Regular expression matching flags")
	f.StringVar(&flagFlagFormat, "ff", "", "Shorthand for --flag-format")
	f.BoolVarP(&flagAuto, "auto", "a", false, "Run every applicable unit")
	f.IntVarP(&flagDepth, "depth", "d", defaults.MaxDepth, "Maximum recursion depth")
	f.StringArrayVar(&flagExclude, "exclude", nil, "Never run this unit (repeatable, comma-separated)")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Log per-worker activity")
	f.BoolVarP(&flagQuiet, "quiet", "q", false, "Hide the progress line")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}

// buildConfig layers defaults, the config file, the environment and the
// flags the user set, then resolves the target.
func buildConfig(cmd *cobra.Command, target string, stdin io.Reader) (*config.Config, error) {
	cfg := config.Default()

	if flagConfig != "" {
		if err := cfg.LoadFile(flagConfig); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("unitdir") {
		cfg.UnitDir = flagUnitDir
	}
	if changed("unit") {
		cfg.Units = flagUnits
	}
	if changed("threads") {
		cfg.Threads = flagThreads
	}
	if changed("force") {
		cfg.Force = flagForce
	}
	if changed("outdir") {
		cfg.OutDir = flagOutDir
	}
	if changed("flag-format") || changed("ff") {
		cfg.FlagFormat = flagFlagFormat
	}
	if changed("auto") {
		cfg.Auto = flagAuto
	}
	if changed("depth") {
		cfg.MaxDepth = flagDepth
	}
	if changed("exclude") {
		cfg.Exclude = nil
		for _, v := range flagExclude {
			cfg.Exclude = append(cfg.Exclude, config.SplitList(v)...)
		}
	}
	cfg.Verbose = flagVerbose
	cfg.Quiet = flagQuiet
	cfg.MetricsAddr = flagMetricsAddr

	resolved, err := resolveTarget(target, stdin)
	if err != nil {
		return nil, err
	}
	cfg.Target = resolved

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveTarget replaces the stdin token with the contents of stdin.
func resolveTarget(target string, stdin io.Reader) (string, error) {
	if target != config.StdinTarget {
		return target, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading target from stdin: %w", err)
	}
	resolved := strings.TrimRight(string(data), "\r\n")
	if resolved == "" {
		return "", fmt.Errorf("empty target on stdin")
	}
	return resolved, nil
}

// unitDirExplicit reports whether the user chose the unit directory, in
// which case it has to exist.
func unitDirExplicit(cmd *cobra.Command, cfg *config.Config) bool {
	return cmd.Flags().Changed("unitdir") || cfg.UnitDir != config.Default().UnitDir
}
