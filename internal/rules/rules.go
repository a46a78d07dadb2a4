// Package rules tags scan records with bucket labels from ordered pattern
// rules.
package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Matching modes.
const (
	ModeFirst    = "first"
	ModeWeighted = "weighted"
)

// Rule maps a regular expression to a bucket tag.
type Rule struct {
	Name    string  `yaml:"name"`
	Bucket  string  `yaml:"bucket"`
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// RuleError describes a rule that was disabled. Other rules keep working.
type RuleError struct {
	Index int
	Name  string
	Err   error
}

func (e *RuleError) Error() string {
	name := e.Name
	if name == "" {
		name = fmt.Sprintf("#%d", e.Index+1)
	}
	return fmt.Sprintf("rule %s disabled: %v", name, e.Err)
}

func (e *RuleError) Unwrap() error {
	return e.Err
}

// ruleFile is the on-disk layout of rules.yaml.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the built-in rule set used when no rule file exists.
// Order matters in first-match mode.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "python-source", Bucket: "src", Pattern: `\.(py|go|rs|ts|js|java)$`, Weight: 1},
		{Name: "scripts", Bucket: "scripts", Pattern: `\.(ps1|bat|sh)$|^run_|^setup|^install`, Weight: 1},
		{Name: "tests", Bucket: "tests", Pattern: `(^|/)tests?/|\bpytest\b|\bunittest\b`, Weight: 1.5},
		{Name: "docs", Bucket: "docs", Pattern: `\.(md|rst|txt)$|^readme|^guide|^installation|(^|/)docs?/`, Weight: 1},
		{Name: "reports", Bucket: "reports", Pattern: `report|summary|analysis`, Weight: 0.8},
		{Name: "configs", Bucket: "configs", Pattern: `\.(ya?ml|toml|ini|json|cfg|env)$|^pyproject|^requirements`, Weight: 1},
		{Name: "data", Bucket: "data", Pattern: `\.(csv|xlsx|xls|parquet)$|(^|/)data/`, Weight: 1},
		{Name: "notebooks", Bucket: "notebooks", Pattern: `\.ipynb$`, Weight: 1},
		{Name: "archive", Bucket: "archive", Pattern: `(^|[_.-])(old|backup|bak|copy)([_.-]|$)`, Weight: 0.5},
	}
}

// Load reads rules from path. A missing file yields DefaultRules and
// builtin=true; a malformed file is an error.
func Load(path string) (rules []Rule, builtin bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultRules(), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, false, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return f.Rules, false, nil
}
