package organizer

import (
	"errors"
	"fmt"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/journal"
	"github.com/harrison/projsort/internal/models"
)

// errInterrupted closes an intent whose move never happened.
var errInterrupted = errors.New("interrupted before the move completed")

// Reconcile closes intents left without an outcome by a crashed run. A move
// that stopped after linking the destination is finished first. A file
// found at its destination with the recorded hash, source gone, is
// committed; anything else is failed, which rollback treats as a no-op.
// It returns the number of operations closed.
func Reconcile(j Journal, ops []journal.Operation) (int, error) {
	closed := 0
	for _, op := range journal.Pending(ops) {
		intent := op.Intent
		if !intent.IsForward() {
			continue
		}

		status, cause := models.JournalFailed, errInterrupted
		if landed(intent) {
			status, cause = models.JournalCommitted, nil
		}
		if _, err := j.Outcome(intent, status, cause); err != nil {
			return closed, fmt.Errorf("reconcile operation %d: %w", intent.OperationID, err)
		}
		closed++
	}
	return closed, nil
}

func landed(intent models.JournalEntry) bool {
	if _, err := fileutil.FinishLinkedMove(intent.SourcePath, intent.DestinationPath); err != nil {
		return false
	}
	if fileutil.Exists(intent.SourcePath) || !fileutil.Exists(intent.DestinationPath) {
		return false
	}
	if intent.ContentHash == "" {
		return true
	}
	hash, err := fileutil.HashFile(intent.DestinationPath)
	return err == nil && hash == intent.ContentHash
}
