package cmd

import (
	"context"
	"fmt"

	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/logger"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/safemap"
	"github.com/harrison/projsort/internal/scanner"
	"github.com/spf13/cobra"
)

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [root]...",
		Short: "Walk directory trees and record every file",
		Long: `Scan walks each root (default: the current directory) and writes one
record per file to scan.jsonl in the workspace, plus the safe map that
resolves record ids back to paths. Unreadable files are skipped and
counted. A scan stopped by a timeout or Ctrl-C keeps every completed
batch and is reported as partial.

Examples:
  projsort scan ~/Downloads ~/Desktop
  projsort scan --exclude '*.iso' --max-depth 4 .
  projsort scan --timeout 5m --progress ~/inbox`,
		RunE: scanCommand,
	}
	addScanFlags(cmd)
	return cmd
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("include", nil, "Only record files matching these globs")
	cmd.Flags().StringSlice("exclude", nil, "Skip files and directories matching these globs (added to config)")
	cmd.Flags().Int("max-depth", 0, "Maximum directory depth below each root (0 = unlimited)")
	cmd.Flags().Int64("max-file-size", 0, "Skip files larger than this many bytes (0 = unlimited)")
	cmd.Flags().Duration("timeout", 0, "Stop scanning after this long (e.g. 30s, 5m)")
	cmd.Flags().Duration("batch-timeout", 0, "Stop scanning if one batch takes longer than this")
	cmd.Flags().Int("workers", 0, "Number of parallel workers")
	cmd.Flags().Bool("progress", false, "Draw a progress bar while scanning")
}

func scanCommand(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	progress, _ := cmd.Flags().GetBool("progress")
	return e.stage("scan", rootsDetail(args), func() (models.StageResult, error) {
		return runScan(ctx, e, args, progress)
	})
}

func rootsDetail(roots []string) string {
	if len(roots) == 0 {
		return "."
	}
	return fmt.Sprintf("%v", roots)
}

// runScan scans roots into the workspace artifacts.
func runScan(ctx context.Context, e *env, roots []string, progress bool) (models.StageResult, error) {
	if len(roots) == 0 {
		roots = []string{"."}
	}

	store, err := safemap.Open(e.ws.Path(config.SafeMapFileName))
	if err != nil {
		return models.StageResult{}, err
	}
	defer store.Close()

	sink, err := scanner.NewArtifactSink(e.ws.Path(config.ScanFileName), store)
	if err != nil {
		return models.StageResult{}, err
	}

	sc := e.cfg.Scan
	opts := scanner.Options{
		Roots:            roots,
		Include:          sc.Include,
		Exclude:          sc.Exclude,
		MaxDepth:         sc.MaxDepth,
		MaxFileSize:      sc.MaxFileSize,
		Timeout:          sc.Timeout,
		BatchTimeout:     sc.BatchTimeout,
		BatchSize:        sc.BatchSize,
		Workers:          sc.Workers,
		HintBytes:        sc.HintBytes,
		FollowSymlinks:   sc.FollowSymlinks,
		ProgressInterval: sc.ProgressInterval,
		OnProgress:       e.scanProgress(progress),
	}

	summary, err := scanner.New(opts, e.log).Run(ctx, sink)
	if closeErr := sink.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close scan artifact: %w", closeErr)
	}
	if err != nil {
		return models.StageResult{Stage: "scan", Status: models.StatusFailure}, err
	}
	if err := fileutil.WriteJSON(e.ws.Path(config.ScanSummaryFileName), summary); err != nil {
		return models.StageResult{Stage: "scan", Status: models.StatusFailure}, fmt.Errorf("write scan summary: %w", err)
	}

	return scanResult(summary), nil
}

func scanResult(s *scanner.Summary) models.StageResult {
	res := models.StageResult{Stage: "scan", Status: models.StatusSuccess, Counts: map[string]int{
		"records": int(s.Records),
		"skipped": int(s.Skipped),
		"errors":  int(s.Errors),
	}}
	if s.Truncated {
		res.Warn(fmt.Sprintf("scan truncated (%s); completed batches were kept", s.TruncatedReason))
	}
	if s.Errors > 0 {
		res.Warn(fmt.Sprintf("%d file(s) could not be read; see scan.summary.json", s.Errors))
	}
	res.Status = s.Status()
	return res
}

// scanProgress draws a bar when asked to, otherwise logs a counter line at
// debug level.
func (e *env) scanProgress(draw bool) scanner.ProgressFunc {
	if !draw {
		return func(p scanner.Progress) {
			e.log.Debugf("%s", logger.Counter("scanned", int(p.Processed), int(p.Errors), p.Elapsed.Seconds()))
		}
	}
	bar := logger.NewProgressBar(0, 30, e.color)
	bar.SetPrefix("scanning ")
	return func(p scanner.Progress) {
		bar.Set(int(p.Processed+p.Skipped+p.Errors), int(p.Discovered))
		bar.Draw(e.out)
		if p.Final {
			fmt.Fprintln(e.out)
		}
	}
}
