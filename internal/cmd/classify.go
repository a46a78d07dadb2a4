package cmd

import (
	"fmt"

	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/rules"
	"github.com/spf13/cobra"
)

// NewClassifyCommand creates the classify command
func NewClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "classify",
		Aliases: []string{"rules"},
		Short:   "Tag scanned files with bucket rules",
		Long: `Classify applies pattern rules to every record in scan.jsonl and writes
the resulting bucket tags to classify.jsonl.

Rules come from --rules, rules.path in config, or rules.yaml in the
workspace; the built-in rule set is used when none exists. A rule with a
bad pattern is disabled and reported, the others still apply.

Examples:
  projsort classify
  projsort classify --rules my-rules.yaml --rules-mode weighted`,
		Args: cobra.NoArgs,
		RunE: classifyCommand,
	}
	addClassifyFlags(cmd)
	return cmd
}

func addClassifyFlags(cmd *cobra.Command) {
	cmd.Flags().String("rules", "", "Path to a rules YAML file")
	cmd.Flags().String("rules-mode", "", "Matching mode: first or weighted")
}

func classifyCommand(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.stage("classify", e.cfg.Rules.Mode+" match", func() (models.StageResult, error) {
		return runClassify(e)
	})
}

func runClassify(e *env) (models.StageResult, error) {
	failed := models.StageResult{Stage: "classify", Status: models.StatusFailure}

	scanPath := e.ws.Path(config.ScanFileName)
	if !fileutil.Exists(scanPath) {
		return failed, fmt.Errorf("no scan artifact at %s; run scan first", scanPath)
	}

	rulesPath := e.ws.RulesPath(e.cfg)
	ruleSet, builtin, err := rules.Load(rulesPath)
	if err != nil {
		return failed, err
	}
	if builtin {
		e.log.Debugf("no rule file at %s; using built-in rules", rulesPath)
	}

	c, err := rules.NewClassifier(ruleSet, e.cfg.Rules.Mode)
	if err != nil {
		return failed, err
	}

	counts, err := rules.ClassifyArtifact(c, scanPath, e.ws.Path(config.ClassifyFileName))
	if err != nil {
		return failed, err
	}

	res := models.StageResult{Stage: "classify", Status: models.StatusSuccess, Counts: counts}
	for _, w := range c.Warnings() {
		res.Warn(w.Error())
	}
	if c.Active() == 0 {
		res.Warn("no active rules; every file is unclassified")
	}
	return res, nil
}
