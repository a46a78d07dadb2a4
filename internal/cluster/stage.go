package cluster

import (
	"fmt"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
)

// LoadRecords joins scan.jsonl with classify.jsonl by safe_id. A missing
// classify artifact leaves every record untagged; records absent from it
// are tagged unclassified.
func LoadRecords(scanPath, classifyPath string) ([]models.ClassifiedRecord, error) {
	tags := make(map[string][]string)
	if classifyPath != "" && fileutil.Exists(classifyPath) {
		err := fileutil.ReadJSONL(classifyPath, func(s models.ClassificationScore) error {
			tags[s.SafeID] = s.Tags
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", classifyPath, err)
		}
	}

	var out []models.ClassifiedRecord
	seen := make(map[string]bool)
	err := fileutil.ReadJSONL(scanPath, func(rec models.ScanRecord) error {
		if err := rec.Validate(); err != nil {
			return err
		}
		if seen[rec.SafeID] {
			return nil
		}
		seen[rec.SafeID] = true
		t, ok := tags[rec.SafeID]
		if !ok && len(tags) > 0 {
			t = []string{models.UnclassifiedTag}
		}
		out = append(out, models.ClassifiedRecord{Record: rec, Tags: t})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", scanPath, err)
	}
	return out, nil
}

// WriteArtifacts persists assignments to clusters.jsonl and the summary to
// clusters.summary.json.
func WriteArtifacts(run *Run, assignmentsPath, summaryPath string) error {
	w, err := fileutil.CreateJSONL[models.ClusterAssignment](assignmentsPath)
	if err != nil {
		return err
	}
	for _, a := range run.Assignments {
		if err := w.Write(a); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return fileutil.WriteJSON(summaryPath, run.Summary)
}

// LoadAssignments reads clusters.jsonl into a safe_id keyed map.
func LoadAssignments(path string) (map[string]models.ClusterAssignment, error) {
	out := make(map[string]models.ClusterAssignment)
	err := fileutil.ReadJSONL(path, func(a models.ClusterAssignment) error {
		if _, dup := out[a.SafeID]; !dup {
			out[a.SafeID] = a
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// StageResult summarises a run for the console: fallback makes it partial.
func StageResult(run *Run) models.StageResult {
	res := models.StageResult{Stage: "cluster", Status: models.StatusSuccess, Counts: map[string]int{
		"records":  run.Summary.Records,
		"projects": len(run.Summary.Projects),
	}}
	if run.Summary.Records == 0 {
		res.Warn("no records to cluster")
	}
	if run.Summary.Fallback {
		res.Warn(fmt.Sprintf("%s clustering fell back to %s: %s", run.Summary.RequestedMode, run.Summary.Strategy, run.Summary.FallbackReason))
	}
	if n := run.Summary.Projects[models.UnclusteredLabel]; n > 0 {
		res.Warn(fmt.Sprintf("%d record(s) left unclustered", n))
	}
	return res
}
