package cmd

import (
	"fmt"

	"github.com/harrison/projsort/internal/models"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [root]...",
		Short: "Scan, classify, cluster and organize in one go",
		Long: `Run executes scan, classify, cluster and organize in order and prints
the report at the end. It accepts the flags of each stage; cluster's
strategy is --cluster-mode here.

A partial stage (truncated scan, clustering fallback, failed moves)
does not stop the pipeline. A failed stage does.

Examples:
  projsort run --target ~/Projects ~/Downloads
  projsort run --target ~/Projects --cluster-mode assisted --timeout 10m .`,
		RunE: runCommand,
	}
	addScanFlags(cmd)
	addClassifyFlags(cmd)
	addOrganizeFlags(cmd)
	cmd.Flags().String("cluster-mode", "", "Clustering strategy: local or assisted")
	cmd.Flags().Int64("seed", 0, "Seed for local clustering")
	cmd.Flags().Bool("json", false, "Print the final report as JSON")
	return cmd
}

func runCommand(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	if e.cfg.Organize.Target == "" {
		return fmt.Errorf("no target directory: pass --target or set organize.target in config")
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()

	progress, _ := cmd.Flags().GetBool("progress")
	stages := []struct {
		name   string
		detail string
		fn     func() (models.StageResult, error)
	}{
		{"scan", rootsDetail(args), func() (models.StageResult, error) { return runScan(ctx, e, args, progress) }},
		{"classify", e.cfg.Rules.Mode + " match", func() (models.StageResult, error) { return runClassify(e) }},
		{"cluster", e.cfg.Cluster.Mode, func() (models.StageResult, error) { return runCluster(ctx, e) }},
		{"organize", e.cfg.Organize.Target, func() (models.StageResult, error) { return runOrganize(ctx, e) }},
	}
	for _, s := range stages {
		if err := e.stage(s.name, s.detail, s.fn); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted after %s: %w", s.name, ctx.Err())
		}
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	return e.printReport(asJSON)
}
