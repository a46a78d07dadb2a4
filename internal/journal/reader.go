package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/harrison/projsort/internal/models"
)

// Read returns every entry in file order. A missing file is an empty
// journal. An unparseable final line without a newline is a torn write from
// a crashed process and is ignored; any other bad line is an error.
func Read(path string) ([]models.JournalEntry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var out []models.JournalEntry
	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		line, readErr := r.ReadBytes('\n')
		atEOF := errors.Is(readErr, io.EOF)
		if readErr != nil && !atEOF {
			return nil, fmt.Errorf("read journal line %d: %w", lineNo+1, readErr)
		}
		if len(line) > 0 {
			lineNo++
			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var e models.JournalEntry
				if err := json.Unmarshal(trimmed, &e); err != nil {
					if !isTorn(line, atEOF) {
						return nil, fmt.Errorf("journal line %d: %w", lineNo, err)
					}
				} else {
					out = append(out, e)
				}
			}
		}
		if atEOF {
			break
		}
	}
	return out, nil
}

// Operation is an intent and the outcome that closed it, if any.
type Operation struct {
	ID      int64
	Intent  models.JournalEntry
	Outcome *models.JournalEntry
}

// Status is the outcome status, or planned when the operation never closed.
func (o Operation) Status() string {
	if o.Outcome == nil {
		return models.JournalPlanned
	}
	return o.Outcome.Status
}

// Final returns the most recent entry for the operation.
func (o Operation) Final() models.JournalEntry {
	if o.Outcome != nil {
		return *o.Outcome
	}
	return o.Intent
}

// Fold groups entries by operation id, ordered by id. Entries whose first
// line is already an outcome (no intent) keep that outcome as both halves.
func Fold(entries []models.JournalEntry) []Operation {
	byID := make(map[int64]*Operation)
	for _, e := range entries {
		e := e
		op, ok := byID[e.OperationID]
		if !ok {
			op = &Operation{ID: e.OperationID, Intent: e}
			byID[e.OperationID] = op
			if e.Status != models.JournalPlanned {
				op.Outcome = &e
			}
			continue
		}
		if e.Status != models.JournalPlanned {
			op.Outcome = &e
		}
	}

	ops := make([]Operation, 0, len(byID))
	for _, op := range byID {
		ops = append(ops, *op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops
}

// Committed returns forward operations whose outcome is committed, in
// commit order.
func Committed(ops []Operation) []Operation {
	var out []Operation
	for _, op := range ops {
		if op.Status() == models.JournalCommitted && op.Intent.IsForward() {
			out = append(out, op)
		}
	}
	return out
}

// Pending returns operations with a durable intent and no outcome.
func Pending(ops []Operation) []Operation {
	var out []Operation
	for _, op := range ops {
		if op.Outcome == nil {
			out = append(out, op)
		}
	}
	return out
}

// Load reads and folds a journal in one step.
func Load(path string) ([]Operation, error) {
	entries, err := Read(path)
	if err != nil {
		return nil, err
	}
	return Fold(entries), nil
}

// isTorn reports whether line is an unterminated final fragment.
func isTorn(line []byte, atEOF bool) bool {
	return atEOF && !bytes.HasSuffix(line, []byte("\n"))
}
