package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	goerrors "github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/katana/internal/config"
	"github.com/steveyegge/katana/internal/engine"
	"github.com/steveyegge/katana/internal/registry"
)

func init() {
	color.NoColor = true
}

func TestResolveTarget(t *testing.T) {
	got, err := resolveTarget("-", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = resolveTarget("-", strings.NewReader("hello\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = resolveTarget("challenge.bin", strings.NewReader("ignored"))
	require.NoError(t, err)
	assert.Equal(t, "challenge.bin", got)

	_, err = resolveTarget("-", strings.NewReader(""))
	assert.Error(t, err)
}

func TestBuildConfig(t *testing.T) {
	t.Setenv("KATANA_THREADS", "7")
	t.Setenv("KATANA_DEPTH", "9")

	require.NoError(t, rootCmd.ParseFlags([]string{
		"--depth", "2",
		"--unit", "base64",
		"--unit", "rot",
		"--exclude", "strings,hex",
		"--ff", `FLAG\{.*?\}`,
	}))

	cfg, err := buildConfig(rootCmd, "-", strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, "hello", cfg.Target)
	assert.Equal(t, 7, cfg.Threads, "environment beats defaults")
	assert.Equal(t, 2, cfg.MaxDepth, "flags beat environment")
	assert.Equal(t, []string{"base64", "rot"}, cfg.Units)
	assert.Equal(t, []string{"strings", "hex"}, cfg.Exclude)
	assert.Equal(t, `FLAG\{.*?\}`, cfg.FlagFormat)
	assert.Equal(t, config.Default().OutDir, cfg.OutDir)
	assert.False(t, unitDirExplicit(rootCmd, cfg))
}

func testRunConfig(t *testing.T, target string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Target = target
	cfg.OutDir = filepath.Join(t.TempDir(), "results")
	cfg.UnitDir = filepath.Join(t.TempDir(), "units")
	cfg.Threads = 4
	cfg.Quiet = true
	return cfg
}

func TestRunFindsEncodedFlag(t *testing.T) {
	cfg := testRunConfig(t, "RkxBR3thYmN9")
	cfg.Auto = true
	cfg.FlagFormat = `FLAG\{.*?\}`

	var stdout, stderr bytes.Buffer
	require.NoError(t, runKatana(context.Background(), cfg, false, &stdout, &stderr))

	data, err := os.ReadFile(filepath.Join(cfg.OutDir, config.OutputFile))
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.JSONEq(t, `["FLAG{abc}"]`, string(doc["flags"]))
	assert.Contains(t, doc, "base64")
	assert.Contains(t, stdout.String(), "FLAG{abc}")
	assert.Contains(t, stdout.String(), "Results written to")
}

func TestRunWithDefinedUnit(t *testing.T) {
	cfg := testRunConfig(t, "id=secret_42;")
	cfg.Units = []string{"grab"}
	cfg.FlagFormat = `secret_\d+`
	require.NoError(t, os.MkdirAll(cfg.UnitDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.UnitDir, "grab.yaml"), []byte(`
name: grab
kind: pattern
pattern:
  regex: "id=([a-z_0-9]+)"
  group: 1
`), 0o644))

	var stdout, stderr bytes.Buffer
	require.NoError(t, runKatana(context.Background(), cfg, true, &stdout, &stderr))

	data, err := os.ReadFile(filepath.Join(cfg.OutDir, config.OutputFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"secret_42"`)
}

func TestRunRefusesExistingOutDir(t *testing.T) {
	cfg := testRunConfig(t, "anything")
	cfg.Auto = true
	require.NoError(t, os.MkdirAll(cfg.OutDir, 0o755))

	var stdout, stderr bytes.Buffer
	err := runKatana(context.Background(), cfg, false, &stdout, &stderr)
	require.ErrorIs(t, err, ErrOutDirExists)

	entries, err := os.ReadDir(cfg.OutDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, stdout.String())
}

func TestRunWithoutUnitsIsFatal(t *testing.T) {
	cfg := testRunConfig(t, "anything")
	cfg.Units = []string{"no-such-unit"}

	var stdout, stderr bytes.Buffer
	err := runKatana(context.Background(), cfg, false, &stdout, &stderr)
	require.ErrorIs(t, err, engine.ErrNoUnits)
	assert.Contains(t, stderr.String(), "requested unit not found")
	assert.NoDirExists(t, cfg.OutDir)
}

func TestRunMissingExplicitUnitDirIsFatal(t *testing.T) {
	cfg := testRunConfig(t, "anything")
	cfg.Auto = true

	var stdout, stderr bytes.Buffer
	err := runKatana(context.Background(), cfg, true, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading unit directory")
	assert.NoDirExists(t, cfg.OutDir)
}

func TestLoadCatalogWarnsAboutSkippedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.yml"), []byte("hello: world\n"), 0o644))

	var logs bytes.Buffer
	catalog, err := loadCatalog(dir, true, newLogger(&logs, false))
	require.NoError(t, err)
	assert.Contains(t, catalog.List(), "base64")
	assert.Contains(t, logs.String(), "skipped unit")
	assert.True(t, errors.Is(catalog.Warnings(), registry.ErrNotAUnit))
}

func TestListUnits(t *testing.T) {
	catalog, err := loadCatalog(filepath.Join(t.TempDir(), "none"), false, newLogger(&bytes.Buffer{}, false))
	require.NoError(t, err)

	var out bytes.Buffer
	listUnits(&out, catalog)
	assert.Contains(t, out.String(), "rot")
	assert.Contains(t, out.String(), "Recursion protected: yes")
}

func TestPrintErrorShowsStackWhenVerbose(t *testing.T) {
	err := goerrors.Wrap(errors.New("constructor exploded"), 0)

	var quiet, verbose bytes.Buffer
	printError(&quiet, err, false)
	printError(&verbose, err, true)

	assert.Contains(t, quiet.String(), "constructor exploded")
	assert.NotContains(t, quiet.String(), "main_test.go")
	assert.Contains(t, verbose.String(), "main_test.go")
}

func TestNewLoggerLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, newLogger(&bytes.Buffer{}, false).GetLevel())
	assert.Equal(t, logrus.DebugLevel, newLogger(&bytes.Buffer{}, true).GetLevel())
}
