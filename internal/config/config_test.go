package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 128, cfg.Scan.BatchSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Scan.ProgressInterval)
	assert.Equal(t, "first", cfg.Rules.Mode)
	assert.Equal(t, "local", cfg.Cluster.Mode)
	assert.Equal(t, int64(42), cfg.Cluster.Seed)
	assert.Equal(t, 3, cfg.Cluster.Assisted.Attempts)
	assert.Equal(t, "version", cfg.Organize.Conflict)
	assert.Equal(t, "misc", cfg.Organize.Schema["unclassified"])
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesFileValues(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
scan:
  exclude: ["*.tmp"]
  max_depth: 6
  timeout: 90s
  batch_timeout: 5s
  follow_symlinks: true
rules:
  mode: weighted
cluster:
  mode: assisted
  assisted:
    base_url: http://localhost:9999/v1
    backoff: 10ms
    attempts: 2
organize:
  target: /srv/sorted
  schema:
    docs: documentation
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"*.tmp"}, cfg.Scan.Exclude)
	assert.Equal(t, 6, cfg.Scan.MaxDepth)
	assert.Equal(t, 90*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Scan.BatchTimeout)
	assert.True(t, cfg.Scan.FollowSymlinks)
	assert.Equal(t, 128, cfg.Scan.BatchSize, "unset values keep defaults")
	assert.Equal(t, "weighted", cfg.Rules.Mode)
	assert.Equal(t, "assisted", cfg.Cluster.Mode)
	assert.Equal(t, "http://localhost:9999/v1", cfg.Cluster.Assisted.BaseURL)
	assert.Equal(t, 10*time.Millisecond, cfg.Cluster.Assisted.Backoff)
	assert.Equal(t, 2, cfg.Cluster.Assisted.Attempts)
	assert.Equal(t, "gpt-4o-mini", cfg.Cluster.Assisted.Model)
	assert.Equal(t, "/srv/sorted", cfg.Organize.Target)
	assert.Equal(t, "documentation", cfg.Organize.Schema["docs"])
	assert.Equal(t, "src", cfg.Organize.Schema["src"], "schema merges over defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "malformed yaml", content: "scan: [", wantErr: "failed to parse config file"},
		{name: "bad duration", content: "scan:\n  timeout: soon\n", wantErr: "invalid scan.timeout format"},
		{name: "bad backoff", content: "cluster:\n  assisted:\n    backoff: x\n", wantErr: "invalid cluster.assisted.backoff format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, field: "log_level"},
		{name: "negative depth", mutate: func(c *Config) { c.Scan.MaxDepth = -1 }, field: "scan.max_depth"},
		{name: "zero batch", mutate: func(c *Config) { c.Scan.BatchSize = 0 }, field: "scan.batch_size"},
		{name: "hint too large", mutate: func(c *Config) { c.Scan.HintBytes = 8192 }, field: "scan.hint_bytes"},
		{name: "rules mode", mutate: func(c *Config) { c.Rules.Mode = "best" }, field: "rules.mode"},
		{name: "cluster mode", mutate: func(c *Config) { c.Cluster.Mode = "remote" }, field: "cluster.mode"},
		{name: "attempts", mutate: func(c *Config) { c.Cluster.Assisted.Attempts = 0 }, field: "cluster.assisted.attempts"},
		{name: "overwrite rejected", mutate: func(c *Config) { c.Organize.Conflict = "overwrite" }, field: "organize.conflict"},
		{name: "unknown conflict", mutate: func(c *Config) { c.Organize.Conflict = "merge" }, field: "organize.conflict"},
		{name: "organize workers", mutate: func(c *Config) { c.Organize.Workers = 0 }, field: "organize.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestMergeWithFlags(t *testing.T) {
	cfg := DefaultConfig()
	mode := "assisted"
	timeout := 3 * time.Second
	target := "/out"
	workers := 2

	cfg.MergeWithFlags(FlagOverrides{
		ClusterMode: &mode,
		Timeout:     &timeout,
		Target:      &target,
		Workers:     &workers,
		Exclude:     []string{"*.bak"},
	})

	assert.Equal(t, "assisted", cfg.Cluster.Mode)
	assert.Equal(t, 3*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, "/out", cfg.Organize.Target)
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, 2, cfg.Organize.Workers)
	assert.Contains(t, cfg.Scan.Exclude, ".git/")
	assert.Contains(t, cfg.Scan.Exclude, "*.bak")
	assert.Equal(t, "first", cfg.Rules.Mode, "nil flags leave values alone")
}

func TestSchemaWarnings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Organize.Schema["bad1"] = "/abs/dir"
	cfg.Organize.Schema["bad2"] = "../escape"
	cfg.Organize.Schema["bad3"] = "  "

	warnings := cfg.SchemaWarnings()
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "absolute path")
	assert.Contains(t, warnings[1], "parent directory reference")
	assert.Contains(t, warnings[2], "empty directory")

	assert.True(t, ValidSchemaDir("data/raw"))
	assert.False(t, ValidSchemaDir("a/../../b"))
}
