package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHomeEnvOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	t.Setenv(HomeEnv, dir)

	home, err := GetHome()
	require.NoError(t, err)
	assert.Equal(t, dir, home)
	assert.DirExists(t, dir)
}

func TestFindWorkspaceWalksUp(t *testing.T) {
	root := t.TempDir()
	ws := filepath.Join(root, WorkspaceDirName)
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(ws, 0755))
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, ok := findWorkspace(nested)
	require.True(t, ok)
	assert.Equal(t, ws, found)

	_, ok = findWorkspace(t.TempDir())
	assert.False(t, ok)
}

func TestOpenWorkspaceExplicitDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "explicit")
	ws, err := OpenWorkspace(dir)
	require.NoError(t, err)

	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(ws.Root, JournalFileName), ws.Path(JournalFileName))

	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join(ws.Root, "logs"), ws.LogDir(cfg))
	assert.Equal(t, filepath.Join(ws.Root, RulesFileName), ws.RulesPath(cfg))

	cfg.LogDir = "/var/log/projsort"
	cfg.Rules.Path = "/etc/projsort/rules.yaml"
	assert.Equal(t, "/var/log/projsort", ws.LogDir(cfg))
	assert.Equal(t, "/etc/projsort/rules.yaml", ws.RulesPath(cfg))
}

func TestWorkspaceLoadConfig(t *testing.T) {
	ws, err := OpenWorkspace(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(ws.Path(ConfigFileName), []byte("log_level: warn\n"), 0644))

	cfg, err := ws.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
