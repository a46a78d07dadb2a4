package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrDestinationExists is returned when a move would replace an existing file.
var ErrDestinationExists = fmt.Errorf("destination already exists: %w", fs.ErrExist)

// MoveNoClobber moves src to dst without ever replacing an existing dst.
//
// On a single filesystem the move is a hard link followed by removal of the
// source, so the existence check and the creation of dst are one atomic
// step. Across filesystems (or where links are unsupported) the content is
// copied into a file created with O_EXCL and the source removed afterwards.
// In every failure path the source is left in place.
func MoveNoClobber(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("move %s: not a regular file", src)
	}

	linkErr := os.Link(src, dst)
	if linkErr == nil {
		if err := os.Remove(src); err != nil {
			// Undo the link so exactly one name refers to the file.
			os.Remove(dst)
			return fmt.Errorf("remove source after link: %w", err)
		}
		syncDir(filepath.Dir(dst))
		syncDir(filepath.Dir(src))
		return nil
	}
	if errors.Is(linkErr, fs.ErrExist) {
		return ErrDestinationExists
	}

	if err := copyExclusive(src, dst, info); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("remove source after copy: %w", err)
	}
	syncDir(filepath.Dir(dst))
	syncDir(filepath.Dir(src))
	return nil
}

// FinishLinkedMove completes a move interrupted between linking dst and
// removing src: when both names refer to the same file, src is removed.
// It reports whether it removed anything.
func FinishLinkedMove(src, dst string) (bool, error) {
	si, err := os.Lstat(src)
	if err != nil {
		return false, nil
	}
	di, err := os.Lstat(dst)
	if err != nil || !os.SameFile(si, di) {
		return false, nil
	}
	if err := os.Remove(src); err != nil {
		return false, fmt.Errorf("remove linked source %s: %w", src, err)
	}
	syncDir(filepath.Dir(src))
	syncDir(filepath.Dir(dst))
	return true, nil
}

// copyExclusive copies src into a newly created dst, preserving mode and mtime.
func copyExclusive(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrDestinationExists
		}
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// syncDir flushes directory metadata so a rename survives a crash. Best effort.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
