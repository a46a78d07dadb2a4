package cmd

import (
	"context"
	"fmt"

	"github.com/harrison/projsort/internal/cluster"
	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/organizer"
	"github.com/harrison/projsort/internal/safemap"
	"github.com/spf13/cobra"
)

// NewOrganizeCommand creates the organize command
func NewOrganizeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Move files into <target>/<project>/<bucket>/",
		Long: `Organize moves every clustered file to <target>/<project>/<bucket dir>/<name>.

Each move is written to journal.jsonl before it happens and its outcome
after, so an interrupted run can be resumed and every move can be rolled
back. Existing files are never replaced: with --conflict version (the
default) an incoming file is renamed to name__<hash7>.ext, with
--conflict skip it stays where it is. Re-running on an organized tree
moves nothing.

Examples:
  projsort organize --target ~/Projects
  projsort organize --target ~/Projects --conflict skip`,
		Args: cobra.NoArgs,
		RunE: organizeCommand,
	}
	addOrganizeFlags(cmd)
	cmd.Flags().String("mode", "move", "Organize mode; only move is supported")
	return cmd
}

func addOrganizeFlags(cmd *cobra.Command) {
	cmd.Flags().String("target", "", "Destination root for project folders")
	cmd.Flags().String("conflict", "", "Conflict policy: version or skip")
	if cmd.Flags().Lookup("workers") == nil {
		cmd.Flags().Int("workers", 0, "Number of parallel workers")
	}
}

func organizeCommand(cmd *cobra.Command, args []string) error {
	if mode, _ := cmd.Flags().GetString("mode"); mode != "move" {
		return fmt.Errorf("unsupported organize mode %q (only move)", mode)
	}

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

	return e.stage("organize", e.cfg.Organize.Target, func() (models.StageResult, error) {
		return runOrganize(ctx, e)
	})
}

func runOrganize(ctx context.Context, e *env) (models.StageResult, error) {
	failed := models.StageResult{Stage: "organize", Status: models.StatusFailure}

	clustersPath := e.ws.Path(config.ClustersFileName)
	if !fileutil.Exists(clustersPath) {
		return failed, fmt.Errorf("no cluster artifact at %s; run cluster first", clustersPath)
	}
	byID, err := cluster.LoadAssignments(clustersPath)
	if err != nil {
		return failed, err
	}
	assignments := make([]models.ClusterAssignment, 0, len(byID))
	for _, a := range byID {
		assignments = append(assignments, a)
	}

	scores, err := organizer.LoadScores(e.ws.Path(config.ClassifyFileName))
	if err != nil {
		return failed, err
	}

	store, err := safemap.Open(e.ws.Path(config.SafeMapFileName))
	if err != nil {
		return failed, err
	}
	defer store.Close()

	o := e.cfg.Organize
	report, err := organizer.Run(ctx, organizer.RunOptions{
		Target:      o.Target,
		Conflict:    o.Conflict,
		Workers:     o.Workers,
		Schema:      o.Schema,
		JournalPath: e.ws.Path(config.JournalFileName),
		LockPath:    e.ws.Path(config.JournalLockFileName),
	}, assignments, scores, store, e.log)
	if report == nil {
		return failed, err
	}
	res := report.StageResult()
	if err != nil {
		res.Status = models.StatusFailure
	}
	return res, err
}
