// Package organizer moves clustered files into target/label/bucket/name.
//
// Every move follows the same protocol: a durable journal intent, the
// directory creation, a no-clobber move, and a durable outcome. An occupied
// destination is never replaced; under the version policy the incoming file
// is renamed stem__<hash7>.ext instead. Only a journal durability failure
// stops the run; every other failure is confined to its file.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/journal"
	"github.com/harrison/projsort/internal/models"
)

// ErrInvalidTransition is returned when a plan entry is driven through an
// illegal state change.
var ErrInvalidTransition = errors.New("invalid plan state transition")

// maxVersionSuffix bounds the _1, _2, ... search for a free versioned name.
const maxVersionSuffix = 1000

// Logger is the logging surface the organizer needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Journal is the append side of the journal.
type Journal interface {
	Intent(e models.JournalEntry) (models.JournalEntry, error)
	Outcome(intent models.JournalEntry, status string, cause error) (models.JournalEntry, error)
}

// Options configures execution.
type Options struct {
	Conflict string
	Workers  int
}

// Report counts what happened to each plan entry.
type Report struct {
	Planned     int      `json:"planned"`
	Committed   int      `json:"committed"`
	Versioned   int      `json:"versioned"`
	Skipped     int      `json:"skipped"`
	Already     int      `json:"already_organized"`
	Missing     int      `json:"source_missing"`
	Failed      int      `json:"failed"`
	Reconciled  int      `json:"reconciled"`
	Interrupted bool     `json:"interrupted,omitempty"`
	Failures    []string `json:"failures,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`

	Entries []models.PlanEntry `json:"-"`
}

// StageResult converts the report into the console summary.
func (r *Report) StageResult() models.StageResult {
	res := models.StageResult{Stage: "organize", Status: models.StatusSuccess, Counts: map[string]int{
		"planned":           r.Planned,
		"committed":         r.Committed,
		"versioned":         r.Versioned,
		"skipped":           r.Skipped,
		"already_organized": r.Already,
		"source_missing":    r.Missing,
		"failed":            r.Failed,
	}}
	if r.Reconciled > 0 {
		res.Counts["reconciled"] = r.Reconciled
	}
	for _, f := range r.Failures {
		res.Warn(f)
	}
	for _, w := range r.Warnings {
		res.Warn(w)
	}
	if r.Missing > 0 {
		res.Warn(fmt.Sprintf("%d source file(s) no longer exist", r.Missing))
	}
	if r.Interrupted {
		res.Warn("organize interrupted; re-run to continue")
	}
	return res
}

// Organizer executes plans against the filesystem.
type Organizer struct {
	journal Journal
	history map[string]journal.Operation
	opts    Options
	logger  Logger

	mu       sync.Mutex
	reserved map[string]string
}

// New builds an organizer. history holds the operations already in the
// journal; committed moves found there make re-runs idempotent.
func New(j Journal, history []journal.Operation, opts Options, logger Logger) *Organizer {
	if opts.Conflict == "" {
		opts.Conflict = models.ConflictVersion
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	latest := make(map[string]journal.Operation)
	for _, op := range journal.Committed(history) {
		latest[op.Intent.SafeID] = op
	}
	return &Organizer{
		journal:  j,
		history:  latest,
		opts:     opts,
		logger:   logger,
		reserved: make(map[string]string),
	}
}

// Execute runs plan. It returns an error wrapping journal.ErrDurability if
// the journal stops accepting writes, and ctx.Err() if cancelled; in both
// cases the report covers the entries finished so far.
func (o *Organizer) Execute(ctx context.Context, plan []models.PlanEntry) (*Report, error) {
	report := &Report{Planned: len(plan)}
	entries := make([]models.PlanEntry, len(plan))
	copy(entries, plan)
	report.Entries = entries

	if err := o.hashSources(ctx, entries); err != nil {
		report.Interrupted = ctx.Err() != nil
		o.tally(report)
		return report, err
	}

	var ready []int
	for i := range entries {
		if o.resolve(&entries[i]) {
			ready = append(ready, i)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, i := range ready {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			return o.move(&entries[i])
		})
	}
	err := g.Wait()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
		report.Interrupted = true
	}

	o.tally(report)
	return report, err
}

// hashSources records the content hash of every source that still exists.
func (o *Organizer) hashSources(ctx context.Context, entries []models.PlanEntry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i := range entries {
		e := &entries[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if o.alreadyOrganized(e) {
				return nil
			}
			if e.SourcePath == e.DestinationPath {
				e.Outcome = models.OutcomeAlready
				return nil
			}
			hash, err := fileutil.HashFile(e.SourcePath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					e.Outcome = models.OutcomeMissing
					return nil
				}
				e.Error = fmt.Sprintf("hash source: %v", err)
				return advance(e, models.StateFailed)
			}
			e.ContentHash = hash
			return nil
		})
	}
	return g.Wait()
}

// alreadyOrganized reports whether the journal shows e's file committed to
// a destination where it still is with the recorded content, source gone.
func (o *Organizer) alreadyOrganized(e *models.PlanEntry) bool {
	op, ok := o.history[e.SafeID]
	if !ok || op.Intent.SourcePath != e.SourcePath {
		return false
	}
	if fileutil.Exists(e.SourcePath) || !fileutil.Exists(op.Intent.DestinationPath) {
		return false
	}
	if op.Intent.ContentHash != "" {
		hash, err := fileutil.HashFile(op.Intent.DestinationPath)
		if err != nil || hash != op.Intent.ContentHash {
			return false
		}
	}
	e.Outcome = models.OutcomeAlready
	e.DestinationPath = op.Intent.DestinationPath
	e.ContentHash = op.Intent.ContentHash
	return true
}

// resolve applies the conflict policy in plan order and reserves the chosen
// destination. It reports whether the entry should be moved.
func (o *Organizer) resolve(e *models.PlanEntry) bool {
	if e.State != models.StatePlanned {
		return false
	}
	switch e.Outcome {
	case models.OutcomeAlready, models.OutcomeMissing:
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.occupied(e.DestinationPath) {
		o.reserved[e.DestinationPath] = e.SafeID
		return true
	}

	if o.opts.Conflict == models.ConflictSkip {
		e.Outcome = models.OutcomeSkipped
		o.debugf("skip %s: %s is occupied", e.SourcePath, e.DestinationPath)
		return false
	}

	dir, name := filepath.Split(e.DestinationPath)
	short := fileutil.ShortHash(e.ContentHash)
	for n := 0; n < maxVersionSuffix; n++ {
		candidate := filepath.Join(dir, VersionedName(name, short, n))
		if !o.occupied(candidate) {
			o.reserved[candidate] = e.SafeID
			e.DestinationPath = candidate
			e.Outcome = models.OutcomeVersioned
			return true
		}
	}
	e.Error = fmt.Sprintf("no free versioned name for %s", e.DestinationPath)
	_ = advance(e, models.StateFailed)
	return false
}

// occupied must be called with o.mu held.
func (o *Organizer) occupied(path string) bool {
	if _, taken := o.reserved[path]; taken {
		return true
	}
	return fileutil.Exists(path)
}

// move runs the intent → mkdir → move → outcome protocol for one entry.
// Only journal failures are returned; file failures land on the entry.
func (o *Organizer) move(e *models.PlanEntry) error {
	action := models.ActionMove
	if e.Outcome == models.OutcomeVersioned {
		action = models.ActionVersionRename
	}

	intent, err := o.journal.Intent(models.JournalEntry{
		Action:          action,
		SafeID:          e.SafeID,
		ProjectLabel:    e.ProjectLabel,
		SourcePath:      e.SourcePath,
		DestinationPath: e.DestinationPath,
		ContentHash:     e.ContentHash,
	})
	if err != nil {
		return fmt.Errorf("record intent for %s: %w", e.SourcePath, err)
	}
	if err := advance(e, models.StateMoving); err != nil {
		return err
	}

	moveErr := os.MkdirAll(filepath.Dir(e.DestinationPath), 0755)
	if moveErr != nil {
		moveErr = fmt.Errorf("create directory: %w", moveErr)
	} else {
		moveErr = fileutil.MoveNoClobber(e.SourcePath, e.DestinationPath)
	}

	status, next := models.JournalCommitted, models.StateCommitted
	if moveErr != nil {
		status, next = models.JournalFailed, models.StateFailed
		e.Error = moveErr.Error()
		o.warnf("move %s failed: %v", e.SourcePath, moveErr)
	}
	if _, err := o.journal.Outcome(intent, status, moveErr); err != nil {
		return fmt.Errorf("record outcome for %s: %w", e.SourcePath, err)
	}
	return advance(e, next)
}

func (o *Organizer) tally(r *Report) {
	for _, e := range r.Entries {
		switch {
		case e.State == models.StateCommitted:
			r.Committed++
			if e.Outcome == models.OutcomeVersioned {
				r.Versioned++
			}
		case e.State == models.StateFailed:
			r.Failed++
			r.Failures = append(r.Failures, fmt.Sprintf("%s: %s", e.SourcePath, e.Error))
		case e.Outcome == models.OutcomeSkipped:
			r.Skipped++
		case e.Outcome == models.OutcomeAlready:
			r.Already++
		case e.Outcome == models.OutcomeMissing:
			r.Missing++
		}
	}
}

func advance(e *models.PlanEntry, to models.PlanState) error {
	if err := e.Advance(to); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return nil
}

func (o *Organizer) debugf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Debugf(format, args...)
	}
}

func (o *Organizer) warnf(format string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warnf(format, args...)
	}
}
