package scanner

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// MaxHintBytes caps the content hint sample.
const MaxHintBytes = 4096

var textExtensions = map[string]bool{
	".md": true, ".txt": true, ".py": true, ".json": true, ".yml": true,
	".yaml": true, ".cfg": true, ".ini": true, ".toml": true, ".csv": true,
	".rs": true, ".ts": true, ".js": true, ".java": true, ".go": true,
	".sh": true, ".sql": true, ".html": true, ".xml": true, ".rst": true,
}

// isTextual reports whether a hint should be read for name.
func isTextual(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if textExtensions[ext] {
		return true
	}
	if ext == "" {
		return false
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "text/")
}

// readHint returns up to n leading bytes of path as UTF-8, dropping invalid
// sequences (including a rune cut at the boundary).
func readHint(path string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if n > MaxHintBytes {
		n = MaxHintBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return strings.ToValidUTF8(string(buf[:read]), ""), nil
}
