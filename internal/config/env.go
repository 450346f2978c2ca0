package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overlays KATANA_* environment variables onto c.
//
// Environment variables:
//   - KATANA_UNITDIR: unit directory
//   - KATANA_THREADS: worker count
//   - KATANA_OUTDIR: output directory
//   - KATANA_FLAG_FORMAT: flag regex
//   - KATANA_DEPTH: maximum recursion depth
//   - KATANA_AUTO: automatic unit matching (true/false)
//   - KATANA_EXCLUDE: comma-separated unit names to exclude
//
// Returns an error if any environment variable has an invalid value.
func (c *Config) ApplyEnv() error {
	if err := parseEnvString("KATANA_UNITDIR", &c.UnitDir); err != nil {
		return err
	}
	if err := parseEnvInt("KATANA_THREADS", &c.Threads); err != nil {
		return err
	}
	if err := parseEnvString("KATANA_OUTDIR", &c.OutDir); err != nil {
		return err
	}
	if err := parseEnvString("KATANA_FLAG_FORMAT", &c.FlagFormat); err != nil {
		return err
	}
	if err := parseEnvInt("KATANA_DEPTH", &c.MaxDepth); err != nil {
		return err
	}
	if err := parseEnvBool("KATANA_AUTO", &c.Auto); err != nil {
		return err
	}
	if err := parseEnvList("KATANA_EXCLUDE", &c.Exclude); err != nil {
		return err
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}

// parseEnvList parses a comma-separated list from an environment variable
func parseEnvList(key string, dest *[]string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	*dest = SplitList(value)
	return nil
}

// SplitList splits a comma-separated list, trimming whitespace and
// dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
