package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ScanConfig controls the streaming scanner.
type ScanConfig struct {
	// Include and Exclude are gitignore-style globs relative to each root.
	// An empty Include admits every file.
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// MaxDepth limits directory descent below a root (0 = unlimited)
	MaxDepth int `yaml:"max_depth"`

	// MaxFileSize skips files larger than this many bytes (0 = unlimited)
	MaxFileSize int64 `yaml:"max_file_size"`

	// Timeout bounds the whole scan (0 = none)
	Timeout time.Duration `yaml:"timeout"`

	// BatchTimeout bounds the processing of one batch (0 = none)
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	BatchSize int `yaml:"batch_size"`
	Workers   int `yaml:"workers"`

	// HintBytes is the content hint sample size, capped at 4096
	HintBytes int `yaml:"hint_bytes"`

	FollowSymlinks bool `yaml:"follow_symlinks"`

	// ProgressInterval is the minimum gap between progress reports
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// RulesConfig selects the rule file and matching mode.
type RulesConfig struct {
	// Path to a rules YAML file; empty or missing uses the built-in rules
	Path string `yaml:"path"`

	// Mode is "first" (first matching rule wins) or "weighted"
	Mode string `yaml:"mode"`
}

// AssistedConfig configures the external clustering service.
type AssistedConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the credential.
	// The credential itself is never read from or written to a file.
	APIKeyEnv string `yaml:"api_key_env"`

	Timeout        time.Duration `yaml:"timeout"`
	Attempts       int           `yaml:"attempts"`
	Backoff        time.Duration `yaml:"backoff"`
	MaxBatchTokens int           `yaml:"max_batch_tokens"`
}

// ClusterConfig selects the clustering strategy.
type ClusterConfig struct {
	// Mode is "local" or "assisted"
	Mode        string         `yaml:"mode"`
	Seed        int64          `yaml:"seed"`
	MaxClusters int            `yaml:"max_clusters"`
	Assisted    AssistedConfig `yaml:"assisted"`
}

// OrganizeConfig controls destination layout and move execution.
type OrganizeConfig struct {
	// Target is the root under which project folders are created
	Target string `yaml:"target"`

	// Conflict is "version" or "skip"
	Conflict string `yaml:"conflict"`

	Workers int `yaml:"workers"`

	// Schema maps a bucket tag to a relative directory under the project.
	// Buckets absent from the map use the tag itself.
	Schema map[string]string `yaml:"schema"`
}

// Config represents projsort configuration options
type Config struct {
	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs are written. Relative paths
	// resolve against the workspace.
	LogDir string `yaml:"log_dir"`

	Scan     ScanConfig     `yaml:"scan"`
	Rules    RulesConfig    `yaml:"rules"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Organize OrganizeConfig `yaml:"organize"`
}

// DefaultSchema returns the built-in bucket to directory mapping.
func DefaultSchema() map[string]string {
	return map[string]string{
		"src":          "src",
		"scripts":      "scripts",
		"tests":        "tests",
		"docs":         "docs",
		"reports":      "reports",
		"configs":      "configs",
		"data":         "data",
		"notebooks":    "notebooks",
		"archive":      "archive",
		"unclassified": "misc",
	}
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		LogDir:   "logs",
		Scan: ScanConfig{
			Exclude:          []string{".git/", ".projsort/", "node_modules/", "__pycache__/", ".venv/"},
			BatchSize:        128,
			Workers:          4,
			HintBytes:        4096,
			ProgressInterval: 200 * time.Millisecond,
		},
		Rules: RulesConfig{
			Mode: "first",
		},
		Cluster: ClusterConfig{
			Mode:        "local",
			Seed:        42,
			MaxClusters: 12,
			Assisted: AssistedConfig{
				BaseURL:        "https://api.openai.com/v1",
				Model:          "gpt-4o-mini",
				APIKeyEnv:      "PROJSORT_API_KEY",
				Timeout:        30 * time.Second,
				Attempts:       3,
				Backoff:        2 * time.Second,
				MaxBatchTokens: 6000,
			},
		},
		Organize: OrganizeConfig{
			Conflict: "version",
			Workers:  4,
			Schema:   DefaultSchema(),
		},
	}
}

// yamlConfig mirrors Config with durations as strings so "30s" parses.
type yamlConfig struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
	Scan     struct {
		Include          []string `yaml:"include"`
		Exclude          []string `yaml:"exclude"`
		MaxDepth         int      `yaml:"max_depth"`
		MaxFileSize      int64    `yaml:"max_file_size"`
		Timeout          string   `yaml:"timeout"`
		BatchTimeout     string   `yaml:"batch_timeout"`
		BatchSize        int      `yaml:"batch_size"`
		Workers          int      `yaml:"workers"`
		HintBytes        int      `yaml:"hint_bytes"`
		FollowSymlinks   bool     `yaml:"follow_symlinks"`
		ProgressInterval string   `yaml:"progress_interval"`
	} `yaml:"scan"`
	Rules   RulesConfig `yaml:"rules"`
	Cluster struct {
		Mode        string `yaml:"mode"`
		Seed        int64  `yaml:"seed"`
		MaxClusters int    `yaml:"max_clusters"`
		Assisted    struct {
			BaseURL        string `yaml:"base_url"`
			Model          string `yaml:"model"`
			APIKeyEnv      string `yaml:"api_key_env"`
			Timeout        string `yaml:"timeout"`
			Attempts       int    `yaml:"attempts"`
			Backoff        string `yaml:"backoff"`
			MaxBatchTokens int    `yaml:"max_batch_tokens"`
		} `yaml:"assisted"`
	} `yaml:"cluster"`
	Organize OrganizeConfig `yaml:"organize"`
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.LogDir != "" {
		cfg.LogDir = y.LogDir
	}

	// Scan
	if y.Scan.Include != nil {
		cfg.Scan.Include = y.Scan.Include
	}
	if y.Scan.Exclude != nil {
		cfg.Scan.Exclude = y.Scan.Exclude
	}
	if y.Scan.MaxDepth != 0 {
		cfg.Scan.MaxDepth = y.Scan.MaxDepth
	}
	if y.Scan.MaxFileSize != 0 {
		cfg.Scan.MaxFileSize = y.Scan.MaxFileSize
	}
	if err := mergeDuration(&cfg.Scan.Timeout, y.Scan.Timeout, "scan.timeout"); err != nil {
		return nil, err
	}
	if err := mergeDuration(&cfg.Scan.BatchTimeout, y.Scan.BatchTimeout, "scan.batch_timeout"); err != nil {
		return nil, err
	}
	if y.Scan.BatchSize != 0 {
		cfg.Scan.BatchSize = y.Scan.BatchSize
	}
	if y.Scan.Workers != 0 {
		cfg.Scan.Workers = y.Scan.Workers
	}
	if y.Scan.HintBytes != 0 {
		cfg.Scan.HintBytes = y.Scan.HintBytes
	}
	if y.Scan.FollowSymlinks {
		cfg.Scan.FollowSymlinks = true
	}
	if err := mergeDuration(&cfg.Scan.ProgressInterval, y.Scan.ProgressInterval, "scan.progress_interval"); err != nil {
		return nil, err
	}

	// Rules
	if y.Rules.Path != "" {
		cfg.Rules.Path = y.Rules.Path
	}
	if y.Rules.Mode != "" {
		cfg.Rules.Mode = y.Rules.Mode
	}

	// Cluster
	if y.Cluster.Mode != "" {
		cfg.Cluster.Mode = y.Cluster.Mode
	}
	if y.Cluster.Seed != 0 {
		cfg.Cluster.Seed = y.Cluster.Seed
	}
	if y.Cluster.MaxClusters != 0 {
		cfg.Cluster.MaxClusters = y.Cluster.MaxClusters
	}
	a := y.Cluster.Assisted
	if a.BaseURL != "" {
		cfg.Cluster.Assisted.BaseURL = a.BaseURL
	}
	if a.Model != "" {
		cfg.Cluster.Assisted.Model = a.Model
	}
	if a.APIKeyEnv != "" {
		cfg.Cluster.Assisted.APIKeyEnv = a.APIKeyEnv
	}
	if err := mergeDuration(&cfg.Cluster.Assisted.Timeout, a.Timeout, "cluster.assisted.timeout"); err != nil {
		return nil, err
	}
	if a.Attempts != 0 {
		cfg.Cluster.Assisted.Attempts = a.Attempts
	}
	if err := mergeDuration(&cfg.Cluster.Assisted.Backoff, a.Backoff, "cluster.assisted.backoff"); err != nil {
		return nil, err
	}
	if a.MaxBatchTokens != 0 {
		cfg.Cluster.Assisted.MaxBatchTokens = a.MaxBatchTokens
	}

	// Organize; schema entries are merged over the defaults
	if y.Organize.Target != "" {
		cfg.Organize.Target = y.Organize.Target
	}
	if y.Organize.Conflict != "" {
		cfg.Organize.Conflict = y.Organize.Conflict
	}
	if y.Organize.Workers != 0 {
		cfg.Organize.Workers = y.Organize.Workers
	}
	for bucket, dir := range y.Organize.Schema {
		cfg.Organize.Schema[bucket] = dir
	}

	return cfg, nil
}

func mergeDuration(dst *time.Duration, raw string, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s format %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// LoadConfigFromDir loads configuration from config.yaml in the workspace dir
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ConfigFileName))
}

// FlagOverrides carries CLI flag values. Nil fields leave the configuration
// untouched so flags only override what the user actually passed.
type FlagOverrides struct {
	LogLevel     *string
	Include      []string
	Exclude      []string
	MaxDepth     *int
	MaxFileSize  *int64
	Timeout      *time.Duration
	BatchTimeout *time.Duration
	Workers      *int
	RulesPath    *string
	RulesMode    *string
	ClusterMode  *string
	Seed         *int64
	Target       *string
	Conflict     *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f FlagOverrides) {
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if len(f.Include) > 0 {
		c.Scan.Include = f.Include
	}
	if len(f.Exclude) > 0 {
		c.Scan.Exclude = append(append([]string{}, c.Scan.Exclude...), f.Exclude...)
	}
	if f.MaxDepth != nil {
		c.Scan.MaxDepth = *f.MaxDepth
	}
	if f.MaxFileSize != nil {
		c.Scan.MaxFileSize = *f.MaxFileSize
	}
	if f.Timeout != nil {
		c.Scan.Timeout = *f.Timeout
	}
	if f.BatchTimeout != nil {
		c.Scan.BatchTimeout = *f.BatchTimeout
	}
	if f.Workers != nil {
		c.Scan.Workers = *f.Workers
		c.Organize.Workers = *f.Workers
	}
	if f.RulesPath != nil {
		c.Rules.Path = *f.RulesPath
	}
	if f.RulesMode != nil {
		c.Rules.Mode = *f.RulesMode
	}
	if f.ClusterMode != nil {
		c.Cluster.Mode = *f.ClusterMode
	}
	if f.Seed != nil {
		c.Cluster.Seed = *f.Seed
	}
	if f.Target != nil {
		c.Organize.Target = *f.Target
	}
	if f.Conflict != nil {
		c.Organize.Conflict = *f.Conflict
	}
}

// ValidationError reports one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate validates the configuration values
// Returns a *ValidationError for the first invalid field
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return invalid("log_level", "%q must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	s := c.Scan
	if s.MaxDepth < 0 {
		return invalid("scan.max_depth", "must be >= 0, got %d", s.MaxDepth)
	}
	if s.MaxFileSize < 0 {
		return invalid("scan.max_file_size", "must be >= 0, got %d", s.MaxFileSize)
	}
	if s.Timeout < 0 || s.BatchTimeout < 0 {
		return invalid("scan.timeout", "timeouts must be >= 0")
	}
	if s.BatchSize <= 0 {
		return invalid("scan.batch_size", "must be > 0, got %d", s.BatchSize)
	}
	if s.Workers <= 0 {
		return invalid("scan.workers", "must be > 0, got %d", s.Workers)
	}
	if s.HintBytes < 0 || s.HintBytes > 4096 {
		return invalid("scan.hint_bytes", "must be between 0 and 4096, got %d", s.HintBytes)
	}
	if s.ProgressInterval <= 0 {
		return invalid("scan.progress_interval", "must be > 0, got %v", s.ProgressInterval)
	}

	if c.Rules.Mode != "first" && c.Rules.Mode != "weighted" {
		return invalid("rules.mode", "%q must be one of: first, weighted", c.Rules.Mode)
	}

	if c.Cluster.Mode != "local" && c.Cluster.Mode != "assisted" {
		return invalid("cluster.mode", "%q must be one of: local, assisted", c.Cluster.Mode)
	}
	if c.Cluster.MaxClusters <= 0 {
		return invalid("cluster.max_clusters", "must be > 0, got %d", c.Cluster.MaxClusters)
	}
	a := c.Cluster.Assisted
	if a.Attempts <= 0 {
		return invalid("cluster.assisted.attempts", "must be > 0, got %d", a.Attempts)
	}
	if a.Timeout <= 0 {
		return invalid("cluster.assisted.timeout", "must be > 0, got %v", a.Timeout)
	}
	if a.Backoff < 0 {
		return invalid("cluster.assisted.backoff", "must be >= 0, got %v", a.Backoff)
	}
	if a.MaxBatchTokens <= 0 {
		return invalid("cluster.assisted.max_batch_tokens", "must be > 0, got %d", a.MaxBatchTokens)
	}
	if a.APIKeyEnv == "" {
		return invalid("cluster.assisted.api_key_env", "cannot be empty")
	}

	switch c.Organize.Conflict {
	case "version", "skip":
	case "overwrite":
		return invalid("organize.conflict", "overwrite is not supported; existing files are never replaced")
	default:
		return invalid("organize.conflict", "%q must be one of: version, skip", c.Organize.Conflict)
	}
	if c.Organize.Workers <= 0 {
		return invalid("organize.workers", "must be > 0, got %d", c.Organize.Workers)
	}

	return nil
}

// SchemaWarnings lists schema entries that cannot be used as relative
// directories. The organizer ignores those entries and falls back to the
// bucket name, so a bad entry never fails the run.
func (c *Config) SchemaWarnings() []string {
	var warnings []string
	for bucket, dir := range c.Organize.Schema {
		if msg := checkSchemaDir(dir); msg != "" {
			warnings = append(warnings, fmt.Sprintf("schema entry %q -> %q ignored: %s", bucket, dir, msg))
		}
	}
	sort.Strings(warnings)
	return warnings
}

// ValidSchemaDir reports whether dir is usable as a schema directory.
func ValidSchemaDir(dir string) bool {
	return checkSchemaDir(dir) == ""
}

func checkSchemaDir(dir string) string {
	if strings.TrimSpace(dir) == "" {
		return "empty directory"
	}
	if filepath.IsAbs(dir) {
		return "absolute path"
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return "parent directory reference"
		}
	}
	return ""
}
