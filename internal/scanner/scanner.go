// Package scanner walks directory trees and streams ScanRecords in bounded
// batches.
//
// Memory stays proportional to the batch size and the number of
// directories, not files: records leave through a Sink as soon as each batch
// completes. Per-file faults are skipped and counted, never fatal.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
	"golang.org/x/sync/errgroup"
)

// Truncation reasons.
const (
	ReasonTimeout      = "timeout"
	ReasonBatchTimeout = "batch-timeout"
	ReasonCancelled    = "cancelled"
)

// maxErrorSamples bounds the error texts kept in the summary.
const maxErrorSamples = 50

// Options configures a scan.
type Options struct {
	Roots   []string
	Include []string
	Exclude []string

	// MaxDepth limits directory levels below a root; files directly in a
	// root are always considered (0 = unlimited)
	MaxDepth int

	// MaxFileSize skips larger files (0 = unlimited)
	MaxFileSize int64

	Timeout      time.Duration
	BatchTimeout time.Duration
	BatchSize    int
	Workers      int
	HintBytes    int

	FollowSymlinks bool

	ProgressInterval time.Duration
	OnProgress       ProgressFunc
}

// Sink receives each completed batch in order.
type Sink interface {
	WriteBatch(ctx context.Context, records []models.ScanRecord) error
}

// Logger is the subset of the logger the scanner uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Summary is the outcome of a scan.
type Summary struct {
	Roots           []string       `json:"roots"`
	Records         int64          `json:"records"`
	Discovered      int64          `json:"discovered"`
	Skipped         int64          `json:"skipped"`
	Errors          int64          `json:"errors"`
	ErrorKinds      map[string]int `json:"error_kinds,omitempty"`
	ErrorSamples    []string       `json:"error_samples,omitempty"`
	Batches         int            `json:"batches"`
	Truncated       bool           `json:"truncated"`
	TruncatedReason string         `json:"truncated_reason,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	Duration        time.Duration  `json:"duration"`
}

// Status classifies the scan for exit handling.
func (s *Summary) Status() models.StageStatus {
	if s.Truncated || s.Errors > 0 {
		return models.StatusPartial
	}
	return models.StatusSuccess
}

func (s *Summary) addError(fe *FileError) {
	s.Errors++
	if s.ErrorKinds == nil {
		s.ErrorKinds = make(map[string]int)
	}
	s.ErrorKinds[fe.Kind]++
	if len(s.ErrorSamples) < maxErrorSamples {
		s.ErrorSamples = append(s.ErrorSamples, fe.Error())
	}
}

// Scanner runs scans with fixed options.
type Scanner struct {
	opts   Options
	logger Logger
}

// New returns a Scanner, filling unset sizes with defaults.
func New(opts Options, logger Logger) *Scanner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 128
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 200 * time.Millisecond
	}
	if opts.HintBytes > MaxHintBytes {
		opts.HintBytes = MaxHintBytes
	}
	return &Scanner{opts: opts, logger: logger}
}

// fileResult is the per-file outcome inside a batch.
type fileResult struct {
	record  *models.ScanRecord
	err     *FileError
	skipped bool
	done    bool
}

// Run scans every root and hands records to sink batch by batch.
//
// Cancellation of ctx is observed between batches; the global and per-batch
// timeouts are also checked between files. Either way the scan stops
// gracefully: completed records are kept and the summary is marked
// truncated. Run only returns an error when the sink fails or the roots
// cannot be resolved.
func (s *Scanner) Run(ctx context.Context, sink Sink) (*Summary, error) {
	roots, err := dedupeRoots(s.opts.Roots)
	if err != nil {
		return nil, err
	}

	counts := &counters{start: time.Now()}
	summary := &Summary{Roots: roots, StartedAt: counts.start.UTC()}
	progress := newProgressReporter(s.opts.ProgressInterval, s.opts.OnProgress)

	var deadline time.Time
	if s.opts.Timeout > 0 {
		deadline = counts.start.Add(s.opts.Timeout)
	}

	walkCtx, stopWalk := context.WithCancel(context.Background())
	candidates := make(chan candidate, s.opts.BatchSize)
	w := &walker{
		roots:    roots,
		matcher:  NewMatcher(s.opts.Include, s.opts.Exclude),
		maxDepth: s.opts.MaxDepth,
		follow:   s.opts.FollowSymlinks,
		visited:  make(map[string]struct{}),
		counts:   counts,
	}
	go w.run(walkCtx, candidates)

	defer func() {
		stopWalk()
		for range candidates {
		}
	}()

	truncate := func(reason string) {
		if !summary.Truncated {
			summary.Truncated = true
			summary.TruncatedReason = reason
			s.logger.Warnf("scan stopped early (%s) after %d records", reason, counts.processed.Load())
		}
	}

	batch := make([]candidate, 0, s.opts.BatchSize)
	exhausted := false
	for !exhausted && !summary.Truncated {
		if ctx.Err() != nil {
			truncate(ReasonCancelled)
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			truncate(ReasonTimeout)
			break
		}

		batch = batch[:0]
		for len(batch) < s.opts.BatchSize {
			c, ok := <-candidates
			if !ok {
				exhausted = true
				break
			}
			switch {
			case c.err != nil:
				s.logger.Warnf("skipping: %v", c.err)
				counts.errors.Add(1)
				summary.addError(c.err)
			case c.skipped:
				counts.skipped.Add(1)
			default:
				batch = append(batch, c)
			}
		}
		if len(batch) == 0 {
			continue
		}

		records, reason := s.processBatch(batch, deadline, counts, summary, progress)
		summary.Batches++
		if len(records) > 0 {
			if err := sink.WriteBatch(ctx, records); err != nil {
				progress.finish(counts.snapshot())
				return nil, fmt.Errorf("write scan batch %d: %w", summary.Batches, err)
			}
		}
		if reason != "" {
			truncate(reason)
		}
		progress.offer(counts.snapshot())
	}

	final := counts.snapshot()
	summary.Records = final.Processed
	summary.Discovered = final.Discovered
	summary.Skipped = final.Skipped
	summary.Duration = final.Elapsed
	progress.finish(final)

	s.logger.Debugf("scan finished: %d records, %d skipped, %d errors in %d batches",
		summary.Records, summary.Skipped, summary.Errors, summary.Batches)
	return summary, nil
}

// processBatch handles one batch on the worker pool. Results keep walk
// order. A non-empty reason means a timeout cut the batch short.
func (s *Scanner) processBatch(batch []candidate, deadline time.Time, counts *counters,
	summary *Summary, progress *progressReporter) ([]models.ScanRecord, string) {

	batchDeadline := deadline
	if s.opts.BatchTimeout > 0 {
		bd := time.Now().Add(s.opts.BatchTimeout)
		if batchDeadline.IsZero() || bd.Before(batchDeadline) {
			batchDeadline = bd
		}
	}

	results := make([]fileResult, len(batch))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i := range batch {
		i := i
		g.Go(func() error {
			if !batchDeadline.IsZero() && !time.Now().Before(batchDeadline) {
				return nil
			}
			results[i] = s.processFile(batch[i])
			results[i].done = true
			switch {
			case results[i].err != nil:
				counts.errors.Add(1)
			case results[i].skipped:
				counts.skipped.Add(1)
			default:
				counts.processed.Add(1)
			}
			progress.offer(counts.snapshot())
			return nil
		})
	}
	g.Wait()

	records := make([]models.ScanRecord, 0, len(batch))
	unfinished := 0
	for _, r := range results {
		switch {
		case !r.done:
			unfinished++
		case r.err != nil:
			s.logger.Warnf("skipping: %v", r.err)
			summary.addError(r.err)
		case r.record != nil:
			records = append(records, *r.record)
		}
	}

	if unfinished == 0 {
		return records, ""
	}
	// the batch-local deadline wins unless the global one is what expired
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return records, ReasonTimeout
	}
	return records, ReasonBatchTimeout
}

// processFile stats one candidate and builds its record.
func (s *Scanner) processFile(c candidate) fileResult {
	info, err := os.Stat(c.path)
	if err != nil {
		return fileResult{err: newFileError(c.path, "stat", err)}
	}
	if !info.Mode().IsRegular() {
		return fileResult{skipped: true}
	}
	if s.opts.MaxFileSize > 0 && info.Size() > s.opts.MaxFileSize {
		return fileResult{skipped: true}
	}

	abs := filepath.Clean(c.path)
	name := filepath.Base(abs)
	rec := &models.ScanRecord{
		Path:         abs,
		SafeID:       fileutil.SafeID(abs),
		Name:         name,
		Extension:    strings.ToLower(filepath.Ext(name)),
		SizeBytes:    info.Size(),
		ModifiedTime: info.ModTime().UTC(),
	}

	if s.opts.HintBytes > 0 && isTextual(name) {
		hint, err := readHint(abs, s.opts.HintBytes)
		if err != nil {
			return fileResult{err: newFileError(abs, "read hint", err)}
		}
		rec.ContentHint = hint
	}
	return fileResult{record: rec}
}
