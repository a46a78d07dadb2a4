package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ShortHashLen is the number of hex characters used in versioned file names.
const ShortHashLen = 7

// SafeID derives the pseudonymous identifier for an absolute path.
// It is a pure function of the cleaned path: the same path always yields
// the same identifier, across runs and machines.
func SafeID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(sum[:])
}

// HashFile returns the hex SHA-256 digest of the file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ShortHash truncates a hex digest to ShortHashLen characters.
func ShortHash(digest string) string {
	if len(digest) <= ShortHashLen {
		return digest
	}
	return digest[:ShortHashLen]
}
