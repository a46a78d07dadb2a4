package cmd

import (
	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/report"
	"github.com/spf13/cobra"
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise the workspace artifacts",
		Long: `Report reads the scan summary, the clustering summary, the journal and
the rollback audit and prints what happened: moves per project, failures,
pending intents and rollback conflicts.

Examples:
  projsort report
  projsort report --json > report.json`,
		Args: cobra.NoArgs,
		RunE: reportCommand,
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func reportCommand(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	asJSON, _ := cmd.Flags().GetBool("json")
	return e.printReport(asJSON)
}

func (e *env) printReport(asJSON bool) error {
	s, err := report.Build(report.Paths{
		ScanSummary:    e.ws.Path(config.ScanSummaryFileName),
		ClusterSummary: e.ws.Path(config.ClusterSummaryFileName),
		Journal:        e.ws.Path(config.JournalFileName),
		RollbackAudit:  e.ws.Path(config.RollbackFileName),
	})
	if err != nil {
		return err
	}
	if asJSON {
		return s.WriteJSON(e.out)
	}
	return s.WriteText(e.out, e.color)
}
