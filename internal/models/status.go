package models

// StageStatus distinguishes clean, degraded and failed stage completions.
type StageStatus string

const (
	StatusSuccess StageStatus = "success"
	StatusPartial StageStatus = "partial"
	StatusFailure StageStatus = "failure"
)

// StageResult is the summary every command reports on completion.
// Partial results are normal completions that carry warnings.
type StageResult struct {
	Stage    string         `json:"stage"`
	Status   StageStatus    `json:"status"`
	Warnings []string       `json:"warnings,omitempty"`
	Counts   map[string]int `json:"counts,omitempty"`
}

// Warn records a warning and downgrades a successful result to partial.
func (r *StageResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
	if r.Status == StatusSuccess || r.Status == "" {
		r.Status = StatusPartial
	}
}
