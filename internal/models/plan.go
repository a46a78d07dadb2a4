package models

import "fmt"

// Conflict policy names.
const (
	ConflictVersion = "version"
	ConflictSkip    = "skip"
)

// PlanState is the per-file organize state.
type PlanState string

const (
	StatePlanned   PlanState = "planned"
	StateMoving    PlanState = "moving"
	StateCommitted PlanState = "committed"
	StateFailed    PlanState = "failed"
)

// validTransitions lists every legal PlanState edge.
var validTransitions = map[PlanState][]PlanState{
	StatePlanned: {StateMoving, StateFailed},
	StateMoving:  {StateCommitted, StateFailed},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to PlanState) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConflictOutcome records how the conflict policy resolved a destination.
type ConflictOutcome string

const (
	OutcomeClear     ConflictOutcome = "clear"
	OutcomeVersioned ConflictOutcome = "versioned"
	OutcomeSkipped   ConflictOutcome = "skipped"
	OutcomeAlready   ConflictOutcome = "already-organized"
	OutcomeMissing   ConflictOutcome = "source-missing"
)

// PlanEntry is one row of the organize plan.
type PlanEntry struct {
	SafeID          string          `json:"safe_id"`
	ProjectLabel    string          `json:"project_label"`
	Bucket          string          `json:"bucket"`
	SourcePath      string          `json:"source_path"`
	DestinationPath string          `json:"destination_path"`
	Outcome         ConflictOutcome `json:"conflict_outcome"`
	State           PlanState       `json:"state"`
	ContentHash     string          `json:"content_hash,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Advance moves the entry to the next state, rejecting illegal transitions.
func (p *PlanEntry) Advance(to PlanState) error {
	if !CanTransition(p.State, to) {
		return fmt.Errorf("%s: invalid transition %s -> %s", p.SafeID, p.State, to)
	}
	p.State = to
	return nil
}
