package organizer

import (
	"path/filepath"
	"strings"

	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/models"
)

// Schema maps bucket tags to directories inside a project folder.
type Schema struct {
	dirs map[string]string
}

// NewSchema keeps the usable entries of m. Unusable entries (empty, absolute,
// escaping the project) are dropped; their buckets fall back to the tag name.
func NewSchema(m map[string]string) Schema {
	dirs := make(map[string]string, len(m))
	for bucket, dir := range m {
		if config.ValidSchemaDir(dir) {
			dirs[strings.ToLower(bucket)] = filepath.Clean(filepath.FromSlash(dir))
		}
	}
	return Schema{dirs: dirs}
}

// Dir returns the directory for bucket.
func (s Schema) Dir(bucket string) string {
	if bucket == "" {
		bucket = models.UnclassifiedTag
	}
	if dir, ok := s.dirs[strings.ToLower(bucket)]; ok {
		return dir
	}
	return bucket
}

// Destination is target/label/schemaDir(bucket)/name.
func (s Schema) Destination(target, label, bucket, name string) string {
	return filepath.Join(target, label, s.Dir(bucket), name)
}
