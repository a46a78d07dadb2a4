package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/journal"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJournal(t *testing.T, path, lock string, write func(w *journal.Writer)) {
	t.Helper()
	w, err := journal.Open(path, lock)
	require.NoError(t, err)
	write(w)
	require.NoError(t, w.Close())
}

func TestBuildSummarisesArtifacts(t *testing.T) {
	dir := t.TempDir()
	paths := Paths{
		ScanSummary:    filepath.Join(dir, "scan.summary.json"),
		ClusterSummary: filepath.Join(dir, "clusters.summary.json"),
		Journal:        filepath.Join(dir, "journal.jsonl"),
		RollbackAudit:  filepath.Join(dir, "rollback.jsonl"),
	}
	lock := filepath.Join(dir, "journal.lock")

	require.NoError(t, fileutil.WriteJSON(paths.ScanSummary, scanner.Summary{Records: 4, Errors: 1, Truncated: true, TruncatedReason: "timeout"}))
	require.NoError(t, fileutil.WriteJSON(paths.ClusterSummary, models.ClusterSummary{
		RequestedMode: models.ClusterModeAssisted, Strategy: models.ClusterModeLocal,
		Fallback: true, FallbackReason: "retries exhausted", Records: 4, Projects: map[string]int{"proj1": 4},
	}))

	writeJournal(t, paths.Journal, lock, func(w *journal.Writer) {
		for i, action := range []string{models.ActionMove, models.ActionVersionRename, models.ActionMove} {
			intent, err := w.Intent(models.JournalEntry{Action: action, ProjectLabel: "proj1", SourcePath: "/in/" + string(rune('a'+i)), DestinationPath: "/out/x"})
			require.NoError(t, err)
			if i == 2 {
				_, err = w.Outcome(intent, models.JournalFailed, errors.New("permission denied"))
			} else {
				_, err = w.Outcome(intent, models.JournalCommitted, nil)
			}
			require.NoError(t, err)
		}
		_, err := w.Intent(models.JournalEntry{Action: models.ActionMove, ProjectLabel: "proj2", SourcePath: "/in/d", DestinationPath: "/out/d"})
		require.NoError(t, err)
	})
	writeJournal(t, paths.RollbackAudit, lock, func(w *journal.Writer) {
		intent, err := w.Intent(models.JournalEntry{Action: models.ActionRestore, SourcePath: "/out/x", DestinationPath: "/in/a", Reverses: 1})
		require.NoError(t, err)
		_, err = w.Outcome(intent, models.JournalCommitted, nil)
		require.NoError(t, err)
		_, err = w.Append(models.JournalEntry{Action: models.ActionRestore, Status: models.JournalConflict, Error: "content changed", Reverses: 2})
		require.NoError(t, err)
	})

	s, err := Build(paths)
	require.NoError(t, err)

	require.NotNil(t, s.Scan)
	assert.True(t, s.Scan.Truncated)
	require.NotNil(t, s.Cluster)
	assert.True(t, s.Cluster.Fallback)

	assert.Equal(t, 2, s.Moves.Committed)
	assert.Equal(t, 1, s.Moves.Versioned)
	assert.Equal(t, 1, s.Moves.Failed)
	assert.Equal(t, 1, s.Moves.Pending)
	assert.Equal(t, 1, s.Moves.Runs)
	assert.Equal(t, map[string]int{"proj1": 2}, s.Moves.ByProject)
	require.Len(t, s.Moves.Failures, 1)
	assert.Contains(t, s.Moves.Failures[0], "permission denied")

	assert.Equal(t, 1, s.Rollback.Restored)
	assert.Equal(t, 1, s.Rollback.Conflicts)
	assert.Equal(t, []string{"content changed"}, s.Rollback.Messages)

	var text bytes.Buffer
	require.NoError(t, s.WriteText(&text, false))
	out := text.String()
	assert.Contains(t, out, "committed: 2")
	assert.Contains(t, out, "truncated (timeout)")
	assert.Contains(t, out, "fallback from assisted: retries exhausted")
	assert.Contains(t, out, "proj1")
	assert.NotContains(t, out, "\x1b[")

	var js bytes.Buffer
	require.NoError(t, s.WriteJSON(&js))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Contains(t, decoded, "moves")
	assert.Contains(t, decoded, "rollback")
}

func TestBuildEmptyWorkspace(t *testing.T) {
	dir := t.TempDir()
	s, err := Build(Paths{
		ScanSummary:    filepath.Join(dir, "scan.summary.json"),
		ClusterSummary: filepath.Join(dir, "clusters.summary.json"),
		Journal:        filepath.Join(dir, "journal.jsonl"),
		RollbackAudit:  filepath.Join(dir, "rollback.jsonl"),
	})
	require.NoError(t, err)
	assert.Nil(t, s.Scan)
	assert.Nil(t, s.Cluster)
	assert.Zero(t, s.Moves.Committed)

	var text bytes.Buffer
	require.NoError(t, s.WriteText(&text, true))
	assert.Contains(t, text.String(), "Moves")
}
