package scanner

import (
	"context"
	"fmt"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
	"github.com/harrison/projsort/internal/safemap"
)

// SafeMapWriter is the part of the safe map the scanner writes to.
type SafeMapWriter interface {
	PutBatch(ctx context.Context, entries []safemap.Entry) error
}

// ArtifactSink appends records to scan.jsonl and their ids to the safe map.
// Each batch is flushed before the next one is accepted, so an interrupted
// scan leaves every completed batch on disk.
type ArtifactSink struct {
	records *fileutil.JSONLWriter[models.ScanRecord]
	safeMap SafeMapWriter
}

// NewArtifactSink creates (truncating) the record file at path.
func NewArtifactSink(path string, safeMap SafeMapWriter) (*ArtifactSink, error) {
	w, err := fileutil.CreateJSONL[models.ScanRecord](path)
	if err != nil {
		return nil, fmt.Errorf("create scan artifact: %w", err)
	}
	return &ArtifactSink{records: w, safeMap: safeMap}, nil
}

// WriteBatch implements Sink.
func (a *ArtifactSink) WriteBatch(ctx context.Context, records []models.ScanRecord) error {
	entries := make([]safemap.Entry, 0, len(records))
	for _, r := range records {
		if err := a.records.Write(r); err != nil {
			return err
		}
		entries = append(entries, safemap.Entry{SafeID: r.SafeID, Path: r.Path})
	}
	if err := a.records.Flush(); err != nil {
		return err
	}
	if a.safeMap != nil {
		if err := a.safeMap.PutBatch(ctx, entries); err != nil {
			return fmt.Errorf("update safe map: %w", err)
		}
	}
	return nil
}

// Count returns how many records were written.
func (a *ArtifactSink) Count() int {
	return a.records.Count()
}

// Close flushes and closes the record file.
func (a *ArtifactSink) Close() error {
	return a.records.Close()
}
