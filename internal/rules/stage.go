package rules

import (
	"fmt"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/harrison/projsort/internal/models"
)

// ClassifyArtifact streams scan.jsonl through c into classify.jsonl and
// returns per-bucket counts keyed by primary tag.
func ClassifyArtifact(c *Classifier, scanPath, outPath string) (map[string]int, error) {
	w, err := fileutil.CreateJSONL[models.ClassificationScore](outPath)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	readErr := fileutil.ReadJSONL(scanPath, func(rec models.ScanRecord) error {
		if err := rec.Validate(); err != nil {
			return err
		}
		score := c.Classify(rec)
		counts[score.PrimaryTag()]++
		return w.Write(score)
	})
	closeErr := w.Close()
	if readErr != nil {
		return nil, fmt.Errorf("classify %s: %w", scanPath, readErr)
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return counts, nil
}
