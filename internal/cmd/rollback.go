package cmd

import (
	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/rollback"
	"github.com/spf13/cobra"
)

// NewRollbackCommand creates the rollback command
func NewRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Move organized files back where they came from",
		Long: `Rollback reverses committed moves from journal.jsonl, newest first.

A file is only moved back if it still has the content it was moved with
and its original path is free; anything else is reported as a conflict
and left alone. Restores are recorded in rollback.jsonl, so an
interrupted rollback can simply be run again.

Examples:
  projsort rollback
  projsort rollback --dry-run
  projsort rollback --run 3f6c1d2e-...`,
		Args: cobra.NoArgs,
		RunE: rollbackCommand,
	}
	cmd.Flags().String("run", "", "Only roll back moves made by this organize run id")
	cmd.Flags().Bool("dry-run", false, "Report what would be restored without moving anything")
	return cmd
}

func rollbackCommand(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	runID, _ := cmd.Flags().GetString("run")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	detail := "all runs"
	if runID != "" {
		detail = "run " + runID
	}
	if dryRun {
		detail += " (dry run)"
	}

	return e.stage("rollback", detail, func() (models.StageResult, error) {
		report, err := rollback.Run(ctx, rollback.Options{
			JournalPath: e.ws.Path(config.JournalFileName),
			AuditPath:   e.ws.Path(config.RollbackFileName),
			LockPath:    e.ws.Path(config.JournalLockFileName),
			RunID:       runID,
			DryRun:      dryRun,
		}, e.log)
		if report == nil {
			return models.StageResult{Stage: "rollback", Status: models.StatusFailure}, err
		}
		res := report.StageResult()
		if err != nil {
			res.Status = models.StatusFailure
		}
		return res, err
	})
}
