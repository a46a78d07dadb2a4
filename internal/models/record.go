package models

import (
	"fmt"
	"time"
)

// UnclassifiedTag is assigned when no classification rule matches a record.
const UnclassifiedTag = "unclassified"

// ScanRecord describes a single file discovered by the scanner.
type ScanRecord struct {
	Path         string    `json:"path"`
	SafeID       string    `json:"safe_id"`
	Name         string    `json:"name"`
	Extension    string    `json:"extension"`
	SizeBytes    int64     `json:"size_bytes"`
	ModifiedTime time.Time `json:"modified_time"`
	ContentHint  string    `json:"content_hint,omitempty"`
}

// Validate checks that the record carries the fields every later stage relies on.
func (r *ScanRecord) Validate() error {
	if r.SafeID == "" {
		return fmt.Errorf("scan record missing safe_id")
	}
	if r.Path == "" {
		return fmt.Errorf("scan record %s missing path", r.SafeID)
	}
	if r.SizeBytes < 0 {
		return fmt.Errorf("scan record %s has negative size %d", r.SafeID, r.SizeBytes)
	}
	return nil
}

// ClassificationScore is the output of the rule classifier for one record.
// Tags are ordered: the first tag is the primary bucket used for placement.
type ClassificationScore struct {
	SafeID string   `json:"safe_id"`
	Tags   []string `json:"tags"`
	Score  float64  `json:"score"`
}

// PrimaryTag returns the bucket used to place the file, or UnclassifiedTag.
func (c ClassificationScore) PrimaryTag() string {
	if len(c.Tags) == 0 || c.Tags[0] == "" {
		return UnclassifiedTag
	}
	return c.Tags[0]
}

// ClassifiedRecord pairs a scan record with its classification.
// It is the unit handed to clustering strategies.
type ClassifiedRecord struct {
	Record ScanRecord
	Tags   []string
}
