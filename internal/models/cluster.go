package models

// UnclusteredLabel is the project label given to records no strategy could place.
const UnclusteredLabel = "unclustered"

// Cluster strategy names.
const (
	ClusterModeLocal    = "local"
	ClusterModeAssisted = "assisted"
)

// ClusterAssignment places one safe_id into exactly one project.
type ClusterAssignment struct {
	SafeID       string  `json:"safe_id"`
	ProjectLabel string  `json:"project_label"`
	Confidence   float64 `json:"confidence"`
}

// ClusterSummary is persisted next to the assignments so later stages and
// the report can tell which strategy produced them.
type ClusterSummary struct {
	RunID          string         `json:"run_id"`
	RequestedMode  string         `json:"requested_mode"`
	Strategy       string         `json:"strategy"`
	Fallback       bool           `json:"fallback"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
	Attempts       int            `json:"attempts"`
	Records        int            `json:"records"`
	Projects       map[string]int `json:"projects"`
}
