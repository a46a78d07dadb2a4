package organizer

import (
	"context"
	"fmt"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/journal"
	"github.com/harrison/projsort/internal/models"
)

// RunOptions configures a full organize pass.
type RunOptions struct {
	Target      string
	Conflict    string
	Workers     int
	Schema      map[string]string
	JournalPath string
	LockPath    string
}

// Run takes the journal lock, closes intents left by an earlier crash,
// plans every assignment and executes the plan.
func Run(ctx context.Context, opts RunOptions, assignments []models.ClusterAssignment,
	scores map[string]models.ClassificationScore, resolver Resolver, logger Logger) (*Report, error) {

	if opts.Target == "" {
		return nil, fmt.Errorf("organize target is not set")
	}

	w, err := journal.Open(opts.JournalPath, opts.LockPath)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	ops, err := journal.Load(opts.JournalPath)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}

	reconciled, err := Reconcile(w, ops)
	if err != nil {
		return nil, err
	}
	if reconciled > 0 {
		if logger != nil {
			logger.Warnf("reconciled %d interrupted operation(s) from a previous run", reconciled)
		}
		if ops, err = journal.Load(opts.JournalPath); err != nil {
			return nil, fmt.Errorf("reload journal: %w", err)
		}
	}

	plan, warnings, err := Plan(ctx, opts.Target, NewSchema(opts.Schema), assignments, scores, resolver)
	if err != nil {
		return nil, err
	}

	org := New(w, ops, Options{Conflict: opts.Conflict, Workers: opts.Workers}, logger)
	report, err := org.Execute(ctx, plan)
	if report != nil {
		report.Reconciled = reconciled
		report.Warnings = append(warnings, report.Warnings...)
	}
	return report, err
}

// LoadScores reads classify.jsonl into a safe_id keyed map. A missing
// artifact yields an empty map and every file lands in the unclassified
// bucket.
func LoadScores(path string) (map[string]models.ClassificationScore, error) {
	out := make(map[string]models.ClassificationScore)
	if !fileutil.Exists(path) {
		return out, nil
	}
	err := fileutil.ReadJSONL(path, func(s models.ClassificationScore) error {
		out[s.SafeID] = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
