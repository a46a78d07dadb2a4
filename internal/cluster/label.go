package cluster

import (
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/projsort/internal/models"
)

// genericSegments never name a project: they are bucket folders, home
// directories or mount points.
var genericSegments = map[string]bool{
	"src": true, "source": true, "sources": true, "lib": true, "bin": true,
	"docs": true, "doc": true, "tests": true, "test": true, "scripts": true,
	"data": true, "notebooks": true, "configs": true, "config": true,
	"reports": true, "archive": true, "misc": true, "assets": true,
	"tmp": true, "temp": true, "var": true, "opt": true, "mnt": true,
	"home": true, "users": true, "user": true, "root": true, "private": true,
	"volumes": true, "documents": true, "downloads": true, "desktop": true,
	"unclassified": true, "unclustered": true,
}

const maxLabelLen = 64

func isGeneric(segment string) bool {
	s := strings.ToLower(segment)
	if s == "" || s == "." || s == ".." || strings.HasPrefix(s, ".") || strings.Contains(s, ":") {
		return true
	}
	if genericSegments[s] {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizeLabel lowercases label and collapses every run of characters
// outside [a-z0-9] into a single underscore. An empty result becomes "misc".
func NormalizeLabel(label string) string {
	var sb strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(label) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && sb.Len() > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r)
			pendingSep = false
			continue
		}
		pendingSep = true
	}
	out := sb.String()
	if len(out) > maxLabelLen {
		out = strings.TrimRight(out[:maxLabelLen], "_")
	}
	if out == "" {
		return "misc"
	}
	return out
}

func dirSegments(path string) []string {
	dir := filepath.ToSlash(filepath.Dir(path))
	parts := strings.Split(dir, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func deepestNonGeneric(segments []string) (string, bool) {
	for i := len(segments) - 1; i >= 0; i-- {
		if !isGeneric(segments[i]) {
			return segments[i], true
		}
	}
	return "", false
}

// DeriveLabel names a group of files after the deepest non-generic segment of
// their longest common directory prefix. When the prefix holds only generic
// segments, the members vote with their own deepest non-generic directory;
// ties go to the lexicographically smallest candidate. With no candidate at
// all the group is unclustered.
func DeriveLabel(paths []string) string {
	if len(paths) == 0 {
		return models.UnclusteredLabel
	}

	common := dirSegments(paths[0])
	for _, p := range paths[1:] {
		segs := dirSegments(p)
		n := 0
		for n < len(common) && n < len(segs) && common[n] == segs[n] {
			n++
		}
		common = common[:n]
	}
	if seg, ok := deepestNonGeneric(common); ok {
		return NormalizeLabel(seg)
	}

	votes := make(map[string]int)
	for _, p := range paths {
		if seg, ok := deepestNonGeneric(dirSegments(p)); ok {
			votes[NormalizeLabel(seg)]++
		}
	}
	if len(votes) == 0 {
		return models.UnclusteredLabel
	}
	candidates := make([]string, 0, len(votes))
	for label := range votes {
		candidates = append(candidates, label)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if votes[candidates[i]] != votes[candidates[j]] {
			return votes[candidates[i]] > votes[candidates[j]]
		}
		return candidates[i] < candidates[j]
	})
	return candidates[0]
}

// ClampConfidence keeps confidences inside [0.50, 0.95].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0.5 || math.IsNaN(c):
		return 0.5
	case c > 0.95:
		return 0.95
	default:
		return c
	}
}
