package models

import "time"

// Journal actions.
const (
	ActionMove          = "move"
	ActionVersionRename = "version-rename"
	ActionRestore       = "restore"
)

// Journal entry statuses. Planned marks a durable intent; committed and
// failed are the two outcomes.
const (
	JournalPlanned   = "planned"
	JournalCommitted = "committed"
	JournalFailed    = "failed"
	JournalConflict  = "conflict"
)

// JournalEntry is one line of the append-only journal. An intent and its
// outcome share the same OperationID.
type JournalEntry struct {
	OperationID     int64     `json:"operation_id"`
	RunID           string    `json:"run_id"`
	Timestamp       time.Time `json:"timestamp"`
	Action          string    `json:"action"`
	SafeID          string    `json:"safe_id,omitempty"`
	ProjectLabel    string    `json:"project_label,omitempty"`
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path"`
	ContentHash     string    `json:"content_hash,omitempty"`
	Status          string    `json:"status"`
	Error           string    `json:"error,omitempty"`
	Reverses        int64     `json:"reverses,omitempty"`
}

// IsForward reports whether the entry was written by the organizer.
func (e JournalEntry) IsForward() bool {
	return e.Action == ActionMove || e.Action == ActionVersionRename
}
