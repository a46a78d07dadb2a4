// Package report summarises the artifacts of a workspace: the scan
// summary, the clustering outcome, the forward journal and the rollback
// audit. It only reads.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/journal"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/scanner"
)

// maxListed bounds the failures and conflicts echoed in a report.
const maxListed = 20

// Paths locates the artifacts. Empty or missing files are simply absent
// from the report.
type Paths struct {
	ScanSummary    string
	ClusterSummary string
	Journal        string
	RollbackAudit  string
}

// Moves summarises the forward journal.
type Moves struct {
	Committed int            `json:"committed"`
	Versioned int            `json:"versioned"`
	Failed    int            `json:"failed"`
	Pending   int            `json:"pending"`
	Runs      int            `json:"runs"`
	ByProject map[string]int `json:"by_project"`
	Failures  []string       `json:"failures,omitempty"`
	LastRunID string         `json:"last_run_id,omitempty"`
}

// Rollbacks summarises the rollback audit.
type Rollbacks struct {
	Restored  int      `json:"restored"`
	Conflicts int      `json:"conflicts"`
	Failed    int      `json:"failed"`
	Messages  []string `json:"messages,omitempty"`
}

// Summary is the whole report.
type Summary struct {
	Scan     *scanner.Summary       `json:"scan,omitempty"`
	Cluster  *models.ClusterSummary `json:"cluster,omitempty"`
	Moves    Moves                  `json:"moves"`
	Rollback Rollbacks              `json:"rollback"`
}

// Build reads every artifact named in p.
func Build(p Paths) (*Summary, error) {
	s := &Summary{Moves: Moves{ByProject: map[string]int{}}}

	if p.ScanSummary != "" {
		var scan scanner.Summary
		if ok, err := readOptional(p.ScanSummary, &scan); err != nil {
			return nil, err
		} else if ok {
			s.Scan = &scan
		}
	}
	if p.ClusterSummary != "" {
		var cs models.ClusterSummary
		if ok, err := readOptional(p.ClusterSummary, &cs); err != nil {
			return nil, err
		} else if ok {
			s.Cluster = &cs
		}
	}

	if p.Journal != "" {
		ops, err := journal.Load(p.Journal)
		if err != nil {
			return nil, fmt.Errorf("load journal: %w", err)
		}
		s.Moves = summariseMoves(ops)
	}
	if p.RollbackAudit != "" {
		ops, err := journal.Load(p.RollbackAudit)
		if err != nil {
			return nil, fmt.Errorf("load rollback audit: %w", err)
		}
		s.Rollback = summariseRollbacks(ops)
	}
	return s, nil
}

func readOptional(path string, v any) (bool, error) {
	if err := fileutil.ReadJSON(path, v); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func summariseMoves(ops []journal.Operation) Moves {
	m := Moves{ByProject: map[string]int{}}
	runs := map[string]bool{}
	for _, op := range ops {
		if !op.Intent.IsForward() {
			continue
		}
		runs[op.Intent.RunID] = true
		m.LastRunID = op.Intent.RunID
		switch op.Status() {
		case models.JournalCommitted:
			m.Committed++
			if op.Intent.Action == models.ActionVersionRename {
				m.Versioned++
			}
			m.ByProject[op.Intent.ProjectLabel]++
		case models.JournalFailed:
			m.Failed++
			if len(m.Failures) < maxListed {
				m.Failures = append(m.Failures, fmt.Sprintf("%s: %s", op.Intent.SourcePath, op.Outcome.Error))
			}
		case models.JournalPlanned:
			m.Pending++
		}
	}
	m.Runs = len(runs)
	return m
}

func summariseRollbacks(ops []journal.Operation) Rollbacks {
	var r Rollbacks
	for _, op := range ops {
		switch op.Status() {
		case models.JournalCommitted:
			r.Restored++
		case models.JournalConflict:
			r.Conflicts++
			if len(r.Messages) < maxListed {
				r.Messages = append(r.Messages, op.Final().Error)
			}
		case models.JournalFailed:
			r.Failed++
			if len(r.Messages) < maxListed {
				r.Messages = append(r.Messages, op.Final().Error)
			}
		}
	}
	return r
}

// WriteJSON renders s as indented JSON.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteText renders s for a terminal. Colour is applied only when colored
// is true.
func (s *Summary) WriteText(w io.Writer, colored bool) error {
	heading := color.New(color.Bold, color.FgCyan)
	good := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	warn := color.New(color.FgYellow)
	for _, c := range []*color.Color{heading, good, bad, warn} {
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	count := func(c *color.Color, n int) string {
		if n == 0 {
			return fmt.Sprint(n)
		}
		return c.Sprint(n)
	}

	var b strings.Builder
	if s.Scan != nil {
		fmt.Fprintln(&b, heading.Sprint("Scan"))
		fmt.Fprintf(&b, "  records: %d  skipped: %d  errors: %s\n", s.Scan.Records, s.Scan.Skipped, count(bad, int(s.Scan.Errors)))
		if s.Scan.Truncated {
			fmt.Fprintf(&b, "  %s\n", warn.Sprintf("truncated (%s)", s.Scan.TruncatedReason))
		}
	}

	if s.Cluster != nil {
		fmt.Fprintln(&b, heading.Sprint("Cluster"))
		fmt.Fprintf(&b, "  strategy: %s  records: %d  projects: %d\n", s.Cluster.Strategy, s.Cluster.Records, len(s.Cluster.Projects))
		if s.Cluster.Fallback {
			fmt.Fprintf(&b, "  %s\n", warn.Sprintf("fallback from %s: %s", s.Cluster.RequestedMode, s.Cluster.FallbackReason))
		}
	}

	fmt.Fprintln(&b, heading.Sprint("Moves"))
	fmt.Fprintf(&b, "  committed: %s  versioned: %s  failed: %s  pending: %s  runs: %d\n",
		count(good, s.Moves.Committed), count(warn, s.Moves.Versioned),
		count(bad, s.Moves.Failed), count(warn, s.Moves.Pending), s.Moves.Runs)
	labels := make([]string, 0, len(s.Moves.ByProject))
	for label := range s.Moves.ByProject {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(&b, "    %-24s %d\n", label, s.Moves.ByProject[label])
	}
	for _, f := range s.Moves.Failures {
		fmt.Fprintf(&b, "  %s %s\n", bad.Sprint("failed:"), f)
	}

	fmt.Fprintln(&b, heading.Sprint("Rollback"))
	fmt.Fprintf(&b, "  restored: %s  conflicts: %s  failed: %s\n",
		count(good, s.Rollback.Restored), count(warn, s.Rollback.Conflicts), count(bad, s.Rollback.Failed))
	for _, m := range s.Rollback.Messages {
		fmt.Fprintf(&b, "  %s %s\n", warn.Sprint("-"), m)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
