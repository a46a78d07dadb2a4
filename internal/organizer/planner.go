package organizer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/projsort/internal/cluster"
	"github.com/harrison/projsort/internal/models"
)

// Resolver turns safe_ids back into local paths. *safemap.Store satisfies it.
type Resolver interface {
	ResolveMany(ctx context.Context, ids []string) (map[string]string, error)
}

// Plan computes one destination per assignment. Plan order is by safe_id so
// that, under the version policy, the same file claims the clean name on
// every run. Ids the resolver does not know are reported as warnings.
func Plan(ctx context.Context, target string, schema Schema, assignments []models.ClusterAssignment,
	scores map[string]models.ClassificationScore, resolver Resolver) ([]models.PlanEntry, []string, error) {

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve target %s: %w", target, err)
	}

	sorted := make([]models.ClusterAssignment, len(assignments))
	copy(sorted, assignments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SafeID < sorted[j].SafeID })

	ids := make([]string, len(sorted))
	for i, a := range sorted {
		ids[i] = a.SafeID
	}
	paths, err := resolver.ResolveMany(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve safe ids: %w", err)
	}

	var warnings []string
	plan := make([]models.PlanEntry, 0, len(sorted))
	for _, a := range sorted {
		src, ok := paths[a.SafeID]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("safe_id %s not in safe map; skipped", a.SafeID))
			continue
		}
		label := cluster.NormalizeLabel(a.ProjectLabel)
		bucket := safeBucket(scores[a.SafeID].PrimaryTag())
		plan = append(plan, models.PlanEntry{
			SafeID:          a.SafeID,
			ProjectLabel:    label,
			Bucket:          bucket,
			SourcePath:      src,
			DestinationPath: schema.Destination(absTarget, label, bucket, filepath.Base(src)),
			Outcome:         models.OutcomeClear,
			State:           models.StatePlanned,
		})
	}
	return plan, warnings, nil
}

// safeBucket keeps bucket names that are single path components.
func safeBucket(bucket string) string {
	if bucket == "" || bucket == "." || bucket == ".." || strings.ContainsAny(bucket, `/\`) {
		return models.UnclassifiedTag
	}
	return bucket
}

// VersionedName returns stem__<hash7>.ext, or stem__<hash7>_<n>.ext for n > 0.
func VersionedName(name, shortHash string, n int) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	if n == 0 {
		return fmt.Sprintf("%s__%s%s", stem, shortHash, ext)
	}
	return fmt.Sprintf("%s__%s_%d%s", stem, shortHash, n, ext)
}
