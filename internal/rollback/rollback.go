// Package rollback reverses committed organize moves.
//
// The forward journal is only read. Every restore is recorded in a separate
// audit log (rollback.jsonl) with the same intent/outcome protocol the
// organizer uses, and the audit log is what makes a rollback resumable: an
// operation with a committed restore is never touched again.
package rollback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/journal"
	"github.com/harrison/projsort/internal/models"
)

// Logger is the logging surface rollback needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Options selects what to roll back and where to record it.
type Options struct {
	JournalPath string
	AuditPath   string
	LockPath    string

	// RunID restricts the rollback to moves made by one organize run.
	RunID string

	// DryRun reports what would happen without touching files or the audit log.
	DryRun bool
}

// Report is the result of a rollback pass.
type Report struct {
	Considered  int      `json:"considered"`
	Restored    int      `json:"restored"`
	Skipped     int      `json:"skipped"`
	Failed      int      `json:"failed"`
	Already     int      `json:"already_restored"`
	Interrupted bool     `json:"interrupted,omitempty"`
	Conflicts   []string `json:"conflicts,omitempty"`
	Failures    []string `json:"failures,omitempty"`
}

// StageResult converts the report into the console summary.
func (r *Report) StageResult() models.StageResult {
	res := models.StageResult{Stage: "rollback", Status: models.StatusSuccess, Counts: map[string]int{
		"restored":         r.Restored,
		"skipped":          r.Skipped,
		"failed":           r.Failed,
		"already_restored": r.Already,
	}}
	for _, c := range r.Conflicts {
		res.Warn("conflict: " + c)
	}
	for _, f := range r.Failures {
		res.Warn("failed: " + f)
	}
	if r.Interrupted {
		res.Warn("rollback interrupted; re-run to continue")
	}
	return res
}

// Run restores committed moves newest first.
func Run(ctx context.Context, opts Options, logger Logger) (*Report, error) {
	var audit *journal.Writer
	if !opts.DryRun {
		w, err := journal.Open(opts.AuditPath, opts.LockPath)
		if err != nil {
			return nil, err
		}
		defer w.Close()
		audit = w
	}

	forward, err := journal.Load(opts.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	previous, err := journal.Load(opts.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("load rollback audit: %w", err)
	}

	r := &restorer{audit: audit, logger: logger, dryRun: opts.DryRun, report: &Report{}}
	if audit != nil {
		if err := r.reconcile(previous); err != nil {
			return r.report, err
		}
		if previous, err = journal.Load(opts.AuditPath); err != nil {
			return r.report, fmt.Errorf("reload rollback audit: %w", err)
		}
	}
	done := restoredSet(previous)

	ops := journal.Committed(forward)
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID > ops[j].ID })

	for _, op := range ops {
		if opts.RunID != "" && op.Intent.RunID != opts.RunID {
			continue
		}
		if ctx.Err() != nil {
			r.report.Interrupted = true
			return r.report, ctx.Err()
		}
		r.report.Considered++
		if done[op.ID] {
			r.report.Already++
			continue
		}
		if err := r.restore(op); err != nil {
			return r.report, err
		}
	}
	if logger != nil {
		logger.Infof("rollback: %d restored, %d skipped, %d failed, %d already restored",
			r.report.Restored, r.report.Skipped, r.report.Failed, r.report.Already)
	}
	return r.report, nil
}

// restoredSet lists forward operation ids with a committed restore.
func restoredSet(audit []journal.Operation) map[int64]bool {
	done := make(map[int64]bool)
	for _, op := range audit {
		if op.Intent.Action == models.ActionRestore && op.Status() == models.JournalCommitted {
			done[op.Intent.Reverses] = true
		}
	}
	return done
}

type restorer struct {
	audit  *journal.Writer
	logger Logger
	dryRun bool
	report *Report
}

// restore moves one file back. Only audit durability failures are returned.
func (r *restorer) restore(op journal.Operation) error {
	moved := op.Intent
	current, original := moved.DestinationPath, moved.SourcePath

	if !fileutil.Exists(current) {
		if fileutil.Exists(original) && hashMatches(original, moved.ContentHash) {
			r.report.Already++
			return nil
		}
		return r.conflict(op, "file no longer at %s", current)
	}
	if !hashMatches(current, moved.ContentHash) {
		return r.conflict(op, "content of %s changed since it was moved", current)
	}
	if fileutil.Exists(original) {
		return r.conflict(op, "original path %s is occupied", original)
	}

	if r.dryRun {
		r.report.Restored++
		return nil
	}

	intent, err := r.audit.Intent(models.JournalEntry{
		Action:          models.ActionRestore,
		SafeID:          moved.SafeID,
		ProjectLabel:    moved.ProjectLabel,
		SourcePath:      current,
		DestinationPath: original,
		ContentHash:     moved.ContentHash,
		Reverses:        op.ID,
	})
	if err != nil {
		return fmt.Errorf("record restore intent for %s: %w", current, err)
	}

	moveErr := os.MkdirAll(filepath.Dir(original), 0755)
	if moveErr != nil {
		moveErr = fmt.Errorf("create directory: %w", moveErr)
	} else {
		moveErr = fileutil.MoveNoClobber(current, original)
	}

	status := models.JournalCommitted
	if moveErr != nil {
		status = models.JournalFailed
		r.report.Failed++
		r.report.Failures = append(r.report.Failures, fmt.Sprintf("%s: %v", current, moveErr))
		r.warnf("restore %s failed: %v", current, moveErr)
	} else {
		r.report.Restored++
		removeEmptyParents(filepath.Dir(current))
	}
	if _, err := r.audit.Outcome(intent, status, moveErr); err != nil {
		return fmt.Errorf("record restore outcome for %s: %w", current, err)
	}
	return nil
}

// conflict skips the operation and records why. Conflicts are re-evaluated
// on the next run.
func (r *restorer) conflict(op journal.Operation, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	r.report.Skipped++
	r.report.Conflicts = append(r.report.Conflicts, msg)
	r.warnf("rollback conflict: %s", msg)
	if r.dryRun {
		return nil
	}
	_, err := r.audit.Append(models.JournalEntry{
		Action:          models.ActionRestore,
		SafeID:          op.Intent.SafeID,
		SourcePath:      op.Intent.DestinationPath,
		DestinationPath: op.Intent.SourcePath,
		ContentHash:     op.Intent.ContentHash,
		Status:          models.JournalConflict,
		Error:           msg,
		Reverses:        op.ID,
	})
	if err != nil {
		return fmt.Errorf("record rollback conflict: %w", err)
	}
	return nil
}

// reconcile closes restore intents left open by an interrupted rollback.
func (r *restorer) reconcile(previous []journal.Operation) error {
	for _, op := range journal.Pending(previous) {
		intent := op.Intent
		if intent.Action != models.ActionRestore {
			continue
		}
		status, cause := models.JournalFailed, fmt.Errorf("interrupted before the restore completed")
		if _, err := fileutil.FinishLinkedMove(intent.SourcePath, intent.DestinationPath); err != nil {
			r.warnf("finish restore %d: %v", intent.OperationID, err)
		}
		if !fileutil.Exists(intent.SourcePath) && hashMatches(intent.DestinationPath, intent.ContentHash) {
			status, cause = models.JournalCommitted, nil
		}
		if _, err := r.audit.Outcome(intent, status, cause); err != nil {
			return fmt.Errorf("reconcile restore %d: %w", intent.OperationID, err)
		}
	}
	return nil
}

func hashMatches(path, want string) bool {
	got, err := fileutil.HashFile(path)
	if err != nil {
		return false
	}
	return want == "" || got == want
}

// removeEmptyParents prunes directories emptied by a restore, stopping at
// the first non-empty one.
func removeEmptyParents(dir string) {
	for i := 0; i < 2; i++ {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (r *restorer) warnf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warnf(format, args...)
	}
}
