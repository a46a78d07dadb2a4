package safemap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/harrison/projsort/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		dbPath  string
		wantErr bool
	}{
		{name: "creates database", dbPath: filepath.Join(t.TempDir(), "safemap.db")},
		{name: "in-memory database", dbPath: ":memory:"},
		{name: "creates parent directories", dbPath: filepath.Join(t.TempDir(), "nested", "dir", "safemap.db")},
		{name: "invalid path", dbPath: "/proc/definitely/not/writable/safemap.db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.dbPath)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()

			n, err := store.Len(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 0, n)
			assert.Equal(t, tt.dbPath, store.Path())
		})
	}
}

func TestPutAndResolve(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "safemap.db"))
	require.NoError(t, err)
	defer store.Close()

	paths := []string{"/proj1/src/a.py", "/proj1/src/b.py", "/proj1/docs/c.txt"}
	var entries []Entry
	for _, p := range paths {
		entries = append(entries, Entry{SafeID: fileutil.SafeID(p), Path: p})
	}
	require.NoError(t, store.PutBatch(ctx, entries))

	// re-inserting is a no-op
	require.NoError(t, store.PutBatch(ctx, entries))

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, p := range paths {
		got, err := store.Resolve(ctx, fileutil.SafeID(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestResolveUnknown(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Resolve(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestResolveMany(t *testing.T) {
	ctx := context.Background()
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	var entries []Entry
	var ids []string
	for i := 0; i < 1200; i++ {
		p := fmt.Sprintf("/data/file-%04d.csv", i)
		id := fileutil.SafeID(p)
		entries = append(entries, Entry{SafeID: id, Path: p})
		ids = append(ids, id)
	}
	require.NoError(t, store.PutBatch(ctx, entries))

	got, err := store.ResolveMany(ctx, append(ids, "missing"))
	require.NoError(t, err)
	assert.Len(t, got, 1200)
	assert.Equal(t, "/data/file-0007.csv", got[ids[7]])
	_, ok := got["missing"]
	assert.False(t, ok)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	ctx := context.Background()
	store, err := Open(filepath.Join(t.TempDir(), "safemap.db"))
	require.NoError(t, err)
	defer store.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				p := fmt.Sprintf("/w%d/f%d", w, i)
				assert.NoError(t, store.Put(ctx, fileutil.SafeID(p), p))
				_, err := store.Len(ctx)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}
