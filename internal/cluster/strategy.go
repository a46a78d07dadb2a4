// Package cluster partitions classified records into project-labelled groups.
//
// Two strategies implement the same Strategy interface: Local (seeded
// k-means over weighted term vectors, runs entirely on this machine) and
// Assisted (an external chat-completion service that only ever sees masked
// metadata). The Engine runs the configured strategy and falls back to Local
// when the assisted service cannot produce a usable answer, so every record
// always ends up with exactly one label.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/harrison/projsort/internal/models"
)

// ErrNoRecords is returned by a strategy asked to cluster nothing.
var ErrNoRecords = errors.New("no records to cluster")

// Logger is the logging surface the engine needs.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// Strategy assigns project labels to records.
type Strategy interface {
	Name() string
	Cluster(ctx context.Context, records []models.ClassifiedRecord) (*Result, error)
}

// Result is what a strategy produced.
type Result struct {
	Strategy    string
	Assignments []models.ClusterAssignment
	Attempts    int
}

// OutcomeKind classifies a single assisted round trip.
type OutcomeKind int

const (
	// OutcomeSuccess carries usable assignments.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRetryable failed in a way another attempt may fix
	// (timeout, throttling, server error, malformed response).
	OutcomeRetryable
	// OutcomeSplit means the request was too large; the batch is halved.
	OutcomeSplit
	// OutcomeFallback gives up on the service immediately (auth failure,
	// missing credential, rejected request that cannot be split further).
	OutcomeFallback
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeSplit:
		return "split"
	case OutcomeFallback:
		return "fallback"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the explicit result of one attempt.
type Outcome struct {
	Kind        OutcomeKind
	Assignments []models.ClusterAssignment
	Err         error
}

// FallbackError is returned by a strategy that gave up. The engine uses it to
// record why and after how many attempts the run fell back.
type FallbackError struct {
	Reason   string
	Attempts int
	Err      error
}

func (e *FallbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s after %d attempt(s): %v", e.Reason, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s)", e.Reason, e.Attempts)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// Run is a completed clustering pass.
type Run struct {
	Assignments []models.ClusterAssignment
	Summary     models.ClusterSummary
}

// Engine runs a primary strategy and, if it fails, a fallback.
type Engine struct {
	primary  Strategy
	fallback Strategy
	logger   Logger
}

// NewEngine builds an engine. fallback may be nil when primary is already
// the local strategy.
func NewEngine(primary, fallback Strategy, logger Logger) *Engine {
	return &Engine{primary: primary, fallback: fallback, logger: logger}
}

// Run clusters records. It only fails on cancellation or when both
// strategies fail; empty input yields an empty run without calling either.
func (e *Engine) Run(ctx context.Context, records []models.ClassifiedRecord) (*Run, error) {
	summary := models.ClusterSummary{
		RunID:         uuid.NewString(),
		RequestedMode: e.primary.Name(),
		Records:       len(records),
	}
	if len(records) == 0 {
		summary.Strategy = e.primary.Name()
		summary.Projects = map[string]int{}
		e.infof("no records to cluster")
		return &Run{Assignments: []models.ClusterAssignment{}, Summary: summary}, nil
	}

	res, err := e.primary.Cluster(ctx, records)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if e.fallback == nil {
			return nil, fmt.Errorf("%s clustering failed: %w", e.primary.Name(), err)
		}

		summary.Fallback = true
		summary.FallbackReason = err.Error()
		var fbErr *FallbackError
		if errors.As(err, &fbErr) {
			summary.Attempts = fbErr.Attempts
		}
		e.warnf("%s clustering unavailable (%v); falling back to %s", e.primary.Name(), err, e.fallback.Name())

		res, err = e.fallback.Cluster(ctx, records)
		if err != nil {
			return nil, fmt.Errorf("fallback %s clustering failed: %w", e.fallback.Name(), err)
		}
		res.Attempts += summary.Attempts
	}

	assignments, dropped := complete(records, res.Assignments)
	if dropped > 0 {
		e.debugf("ignored %d assignment(s) for unknown or duplicate safe_ids", dropped)
	}

	summary.Strategy = res.Strategy
	summary.Attempts = res.Attempts
	summary.Projects = make(map[string]int)
	for _, a := range assignments {
		summary.Projects[a.ProjectLabel]++
	}
	e.infof("clustered %d records into %d project(s) with %s", len(assignments), len(summary.Projects), res.Strategy)

	return &Run{Assignments: assignments, Summary: summary}, nil
}

// complete returns exactly one assignment per record, sorted by safe_id.
// The first assignment for a safe_id wins; unknown ids are dropped; records
// left without an assignment are unclustered.
func complete(records []models.ClassifiedRecord, assigned []models.ClusterAssignment) ([]models.ClusterAssignment, int) {
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.Record.SafeID] = true
	}

	byID := make(map[string]models.ClusterAssignment, len(records))
	dropped := 0
	for _, a := range assigned {
		if !known[a.SafeID] {
			dropped++
			continue
		}
		if _, dup := byID[a.SafeID]; dup {
			dropped++
			continue
		}
		if a.ProjectLabel == "" {
			a.ProjectLabel = models.UnclusteredLabel
		}
		a.Confidence = ClampConfidence(a.Confidence)
		byID[a.SafeID] = a
	}

	out := make([]models.ClusterAssignment, 0, len(known))
	for id := range known {
		a, ok := byID[id]
		if !ok {
			a = models.ClusterAssignment{SafeID: id, ProjectLabel: models.UnclusteredLabel, Confidence: 0.5}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SafeID < out[j].SafeID })
	return out, dropped
}

func (e *Engine) debugf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Debugf(format, args...)
	}
}

func (e *Engine) infof(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Infof(format, args...)
	}
}

func (e *Engine) warnf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Warnf(format, args...)
	}
}
