package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoveNoClobber(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0640))

	require.NoError(t, MoveNoClobber(src, dst))

	assert.False(t, Exists(src))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestMoveNoClobberRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "incoming.py")
	dst := filepath.Join(dir, "util.py")
	require.NoError(t, os.WriteFile(src, []byte("incoming"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("occupant"), 0644))

	err := MoveNoClobber(src, dst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationExists))
	assert.True(t, errors.Is(err, os.ErrExist))

	srcData, err := os.ReadFile(src)
	require.NoError(t, err)
	dstData, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "incoming", string(srcData))
	assert.Equal(t, "occupant", string(dstData))
}

func TestMoveNoClobberRejectsDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "folder")
	require.NoError(t, os.Mkdir(src, 0755))

	err := MoveNoClobber(src, filepath.Join(dir, "elsewhere"))
	assert.Error(t, err)
	assert.True(t, Exists(src))
}

func TestFinishLinkedMove(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, src, dst string)
		wantRemoved bool
	}{
		{
			name: "hard link pair",
			setup: func(t *testing.T, src, dst string) {
				require.NoError(t, os.Link(src, dst))
			},
			wantRemoved: true,
		},
		{
			name: "separate file with same content",
			setup: func(t *testing.T, src, dst string) {
				require.NoError(t, os.WriteFile(dst, []byte("payload"), 0644))
			},
		},
		{
			name:  "destination missing",
			setup: func(t *testing.T, src, dst string) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := filepath.Join(dir, "src.txt")
			dst := filepath.Join(dir, "dst.txt")
			require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))
			tt.setup(t, src, dst)

			removed, err := FinishLinkedMove(src, dst)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)
			assert.Equal(t, !tt.wantRemoved, Exists(src))
		})
	}

	removed, err := FinishLinkedMove(filepath.Join(t.TempDir(), "gone"), "/nonexistent")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCopyExclusivePreservesModTime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.bin")
	dst := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(src, []byte{1, 2, 3}, 0600))
	info, err := os.Stat(src)
	require.NoError(t, err)

	require.NoError(t, copyExclusive(src, dst, info))

	out, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime().Unix(), out.ModTime().Unix())
	assert.Equal(t, os.FileMode(0600), out.Mode().Perm())

	err = copyExclusive(src, dst, info)
	assert.True(t, errors.Is(err, ErrDestinationExists))
}
