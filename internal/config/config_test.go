package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Threads)
	assert.Equal(t, 5, cfg.MaxDepth)
	assert.Equal(t, 20, cfg.QueueCapacity())
	assert.Equal(t, filepath.Join("./results", "katana.json"), cfg.OutputPath())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "zero threads", mutate: func(c *Config) { c.Threads = 0 }, wantErr: "threads must be at least 1"},
		{name: "too many threads", mutate: func(c *Config) { c.Threads = 5000 }, wantErr: "threads too large"},
		{name: "zero depth", mutate: func(c *Config) { c.MaxDepth = 0 }, wantErr: "depth must be at least 1"},
		{name: "empty outdir", mutate: func(c *Config) { c.OutDir = " " }, wantErr: "outdir is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "valid overrides",
			envVars: map[string]string{
				"KATANA_UNITDIR":     "/opt/units",
				"KATANA_THREADS":     "4",
				"KATANA_OUTDIR":      "/tmp/out",
				"KATANA_FLAG_FORMAT": `CTF\{.*?\}`,
				"KATANA_DEPTH":       "3",
				"KATANA_AUTO":        "true",
				"KATANA_EXCLUDE":     "rot, strings,,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/opt/units", cfg.UnitDir)
				assert.Equal(t, 4, cfg.Threads)
				assert.Equal(t, "/tmp/out", cfg.OutDir)
				assert.Equal(t, `CTF\{.*?\}`, cfg.FlagFormat)
				assert.Equal(t, 3, cfg.MaxDepth)
				assert.True(t, cfg.Auto)
				assert.Equal(t, []string{"rot", "strings"}, cfg.Exclude)
			},
		},
		{
			name:    "invalid int",
			envVars: map[string]string{"KATANA_THREADS": "many"},
			wantErr: true,
		},
		{
			name:    "invalid bool",
			envVars: map[string]string{"KATANA_AUTO": "sometimes"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"KATANA_UNITDIR", "KATANA_THREADS", "KATANA_OUTDIR",
				"KATANA_FLAG_FORMAT", "KATANA_DEPTH", "KATANA_AUTO", "KATANA_EXCLUDE"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := Default()
			err := cfg.ApplyEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "katana.yaml")
	content := `
unitdir: /srv/units
units: [base64, hex]
threads: 3
flag_format: "FLAG\\{.*?\\}"
auto: true
depth: 7
exclude: [rot]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "/srv/units", cfg.UnitDir)
	assert.Equal(t, []string{"base64", "hex"}, cfg.Units)
	assert.Equal(t, 3, cfg.Threads)
	assert.Equal(t, `FLAG\{.*?\}`, cfg.FlagFormat)
	assert.True(t, cfg.Auto)
	assert.Equal(t, 7, cfg.MaxDepth)
	assert.Equal(t, []string{"rot"}, cfg.Exclude)
	// untouched settings keep their defaults
	assert.Equal(t, "./results", cfg.OutDir)
	assert.False(t, cfg.Force)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("threads: [unterminated"), 0644))
	err := cfg.LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ,b,"))
}
