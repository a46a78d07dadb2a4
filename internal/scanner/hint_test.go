package scanner

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTextual(t *testing.T) {
	for _, name := range []string{"a.py", "README.md", "cfg.YAML", "notes.txt", "page.html"} {
		assert.True(t, isTextual(name), name)
	}
	for _, name := range []string{"img.png", "blob.bin", "Makefile", "archive.zip"} {
		assert.False(t, isTextual(name), name)
	}
}

func TestReadHintBoundsAndUTF8(t *testing.T) {
	dir := t.TempDir()

	long := filepath.Join(dir, "long.txt")
	require.NoError(t, os.WriteFile(long, []byte(strings.Repeat("a", 10000)), 0644))
	hint, err := readHint(long, 8192)
	require.NoError(t, err)
	assert.Len(t, hint, MaxHintBytes)

	// "é" is two bytes; cutting after the first leaves an invalid sequence
	cut := filepath.Join(dir, "cut.txt")
	require.NoError(t, os.WriteFile(cut, []byte("abé"), 0644))
	hint, err = readHint(cut, 3)
	require.NoError(t, err)
	assert.Equal(t, "ab", hint)

	bad := filepath.Join(dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("ok\xff\xfeok"), 0644))
	hint, err = readHint(bad, 100)
	require.NoError(t, err)
	assert.Equal(t, "okok", hint)

	hint, err = readHint(bad, 0)
	require.NoError(t, err)
	assert.Empty(t, hint)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}, KindPermission},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.ENAMETOOLONG}, KindPathTooLong},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.EBUSY}, KindLocked},
		{&fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, KindNotFound},
		{errors.New("boom"), KindIO},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.err), tt.err.Error())
	}

	fe := newFileError("/x", "stat", tests[0].err)
	assert.True(t, errors.Is(fe, fs.ErrPermission))
	assert.Contains(t, fe.Error(), "stat /x (permission)")
}
