// Package cmd wires the pipeline stages into the projsort command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for projsort
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projsort",
		Short: "Reorganize loose files into project folders",
		Long: `Projsort scans directory trees, tags files with pattern rules, groups
them into projects and moves them into a target layout.

Every move is written to an append-only journal before it happens, so
an organize run can always be resumed or rolled back. Artifacts live in
a workspace directory (.projsort by default, or $PROJSORT_HOME).`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("workspace", "", "Workspace directory (default: $PROJSORT_HOME or nearest .projsort)")
	cmd.PersistentFlags().String("config", "", "Path to config file (default: <workspace>/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().Bool("no-log-file", false, "Do not write a run log under the workspace")

	cmd.AddCommand(NewScanCommand())
	cmd.AddCommand(NewClassifyCommand())
	cmd.AddCommand(NewClusterCommand())
	cmd.AddCommand(NewOrganizeCommand())
	cmd.AddCommand(NewRollbackCommand())
	cmd.AddCommand(NewReportCommand())
	cmd.AddCommand(NewRunCommand())

	return cmd
}
