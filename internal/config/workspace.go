package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides workspace discovery when set.
const HomeEnv = "PROJSORT_HOME"

// WorkspaceDirName is the per-tree workspace directory name.
const WorkspaceDirName = ".projsort"

// Artifact file names inside the workspace.
const (
	ConfigFileName         = "config.yaml"
	RulesFileName          = "rules.yaml"
	ScanFileName           = "scan.jsonl"
	ScanSummaryFileName    = "scan.summary.json"
	SafeMapFileName        = "safemap.db"
	ClassifyFileName       = "classify.jsonl"
	ClustersFileName       = "clusters.jsonl"
	ClusterSummaryFileName = "clusters.summary.json"
	JournalFileName        = "journal.jsonl"
	JournalLockFileName    = "journal.lock"
	RollbackFileName       = "rollback.jsonl"
)

// Workspace is the directory holding every pipeline artifact for one tree.
type Workspace struct {
	Root string
}

// GetHome returns the workspace directory.
// Priority order:
//  1. PROJSORT_HOME environment variable (if set)
//  2. Nearest ancestor of the working directory containing .projsort/
//  3. .projsort/ in the current working directory (fallback)
//
// The directory is created if it doesn't exist
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		if err := os.MkdirAll(home, 0755); err != nil {
			return "", fmt.Errorf("create workspace directory: %w", err)
		}
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	if found, ok := findWorkspace(cwd); ok {
		return found, nil
	}

	home := filepath.Join(cwd, WorkspaceDirName)
	if err := os.MkdirAll(home, 0755); err != nil {
		return "", fmt.Errorf("create workspace directory: %w", err)
	}
	return home, nil
}

// findWorkspace walks up from dir looking for an existing .projsort directory.
func findWorkspace(dir string) (string, bool) {
	current := dir
	for {
		candidate := filepath.Join(current, WorkspaceDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// OpenWorkspace resolves the workspace, honouring an explicit dir when given.
func OpenWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		home, err := GetHome()
		if err != nil {
			return nil, err
		}
		dir = home
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace directory: %w", err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}
	return &Workspace{Root: abs}, nil
}

// Path joins name onto the workspace root.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Root, name)
}

// LogDir resolves the configured log directory against the workspace.
func (w *Workspace) LogDir(cfg *Config) string {
	if filepath.IsAbs(cfg.LogDir) {
		return cfg.LogDir
	}
	return filepath.Join(w.Root, cfg.LogDir)
}

// RulesPath returns the configured rule file, or rules.yaml in the workspace.
func (w *Workspace) RulesPath(cfg *Config) string {
	if cfg.Rules.Path != "" {
		return cfg.Rules.Path
	}
	return w.Path(RulesFileName)
}

// LoadConfig loads config.yaml from the workspace.
func (w *Workspace) LoadConfig() (*Config, error) {
	return LoadConfigFromDir(w.Root)
}
