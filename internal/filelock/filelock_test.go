package filelock

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockUnlock(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "journal.lock"))

	require.NoError(t, lock.Lock())
	require.NoError(t, lock.Unlock())
}

func TestTryLockHeldElsewhere(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "journal.lock")

	first := NewFileLock(lockPath)
	ok, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer first.Unlock()

	// flock locks are per open file description, so a second handle in the
	// same process observes the lock like another process would.
	second := NewFileLock(lockPath)
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, ok, "second handle must not acquire a held lock")
}

func TestAtomicWrite(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		data     string
	}{
		{name: "creates new file", data: `{"records":3}`},
		{name: "replaces existing file", existing: "old", data: "new"},
		{name: "writes empty payload", existing: "old", data: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "clusters.summary.json")
			if tt.existing != "" {
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
				require.NoError(t, os.WriteFile(path, []byte(tt.existing), 0600))
			}

			require.NoError(t, AtomicWrite(path, []byte(tt.data)))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(got))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
		})
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.json")

	for i := 0; i < 5; i++ {
		require.NoError(t, AtomicWrite(path, []byte(strings.Repeat("x", i))))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}
