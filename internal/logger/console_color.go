package logger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/harrison/projsort/internal/models"
)

// colorScheme defines consistent colors for stage output.
// Green: success/positive counts
// Red: failures
// Yellow: warnings and partial results
// Cyan: labels
type colorScheme struct {
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
	value   *color.Color
}

// newColorScheme creates the standard scheme. When enabled is false every
// color is disabled so output stays plain for pipes and files.
func newColorScheme(enabled bool) *colorScheme {
	s := &colorScheme{
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
		value:   color.New(color.FgWhite),
	}
	if !enabled {
		for _, c := range []*color.Color{s.success, s.fail, s.warn, s.label, s.value} {
			c.DisableColor()
		}
	} else {
		for _, c := range []*color.Color{s.success, s.fail, s.warn, s.label, s.value} {
			c.EnableColor()
		}
	}
	return s
}

func (s *colorScheme) status(status models.StageStatus) string {
	switch status {
	case models.StatusSuccess:
		return s.success.Sprint(string(status))
	case models.StatusPartial:
		return s.warn.Sprint(string(status))
	default:
		return s.fail.Sprint(string(status))
	}
}

// countColor picks a color for a named count. Failure-ish counters are red
// when non-zero, skip/conflict counters yellow, the rest neutral.
func (s *colorScheme) countColor(name string, n int) *color.Color {
	if n == 0 {
		return s.value
	}
	switch {
	case strings.Contains(name, "fail") || strings.Contains(name, "error"):
		return s.fail
	case strings.Contains(name, "skip") || strings.Contains(name, "conflict") || strings.Contains(name, "version"):
		return s.warn
	case strings.Contains(name, "commit") || strings.Contains(name, "restor") || strings.Contains(name, "record"):
		return s.success
	default:
		return s.value
	}
}

// formatColorizedMetric formats a single metric with colorized label and value.
// Format: "label: value"
func formatColorizedMetric(label string, value int, scheme *colorScheme) string {
	return fmt.Sprintf("%s: %s", scheme.label.Sprint(label), scheme.countColor(label, value).Sprintf("%d", value))
}

// formatCounts renders counts as "a: 1, b: 2" in key order.
// Returns empty string for an empty map.
func formatCounts(counts map[string]int, scheme *colorScheme) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, formatColorizedMetric(k, counts[k], scheme))
	}
	return strings.Join(parts, ", ")
}
