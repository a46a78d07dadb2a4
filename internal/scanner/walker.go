package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// candidate is one walker output: a file to process, a skipped entry or a
// fault. Exactly one of the three is meaningful.
type candidate struct {
	path    string
	rel     string
	skipped bool
	err     *FileError
}

type dirItem struct {
	path      string
	rel       string
	canonical string
	depth     int
}

// walker streams files under a set of roots. Directories are tracked by
// canonical path, so symlink cycles and overlapping roots are each visited
// once. Only directory paths are remembered; files are never held.
type walker struct {
	roots    []string
	matcher  *Matcher
	maxDepth int
	follow   bool
	visited  map[string]struct{}
	counts   *counters
}

// dedupeRoots makes roots absolute and drops exact duplicates, keeping the
// first occurrence order.
func dedupeRoots(roots []string) ([]string, error) {
	seen := make(map[string]struct{}, len(roots))
	var out []string
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", r, err)
		}
		abs = filepath.Clean(abs)
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out, nil
}

// run walks every root, sending candidates to out until done or ctx ends.
// It closes out on return.
func (w *walker) run(ctx context.Context, out chan<- candidate) {
	defer close(out)
	for _, root := range w.roots {
		if !w.walkRoot(ctx, root, out) {
			return
		}
	}
}

func (w *walker) send(ctx context.Context, out chan<- candidate, c candidate) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *walker) walkRoot(ctx context.Context, root string, out chan<- candidate) bool {
	canonical, err := filepath.EvalSymlinks(root)
	if err != nil {
		return w.send(ctx, out, candidate{err: newFileError(root, "open root", err)})
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return w.send(ctx, out, candidate{err: newFileError(root, "stat root", err)})
	}
	if !info.IsDir() {
		return w.send(ctx, out, candidate{err: newFileError(root, "open root", errors.New("not a directory"))})
	}
	if _, ok := w.visited[canonical]; ok {
		return true
	}
	w.visited[canonical] = struct{}{}

	stack := []dirItem{{path: root, canonical: canonical}}
	for len(stack) > 0 {
		if ctx.Err() != nil {
			return false
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(cur.path)
		if err != nil {
			if !w.send(ctx, out, candidate{err: newFileError(cur.path, "read dir", err)}) {
				return false
			}
			continue
		}

		// push subdirectories in reverse so they pop in name order
		var subdirs []dirItem
		for _, entry := range entries {
			full := filepath.Join(cur.path, entry.Name())
			rel := path.Join(cur.rel, entry.Name())

			c, dir, ok := w.classifyEntry(cur, entry, full, rel)
			if dir != nil {
				subdirs = append(subdirs, *dir)
				continue
			}
			if !ok {
				continue
			}
			if c.path != "" {
				w.counts.discovered.Add(1)
			}
			if !w.send(ctx, out, c) {
				return false
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return true
}

// classifyEntry decides what a directory entry becomes. It returns a
// directory to descend into, or a candidate to send (ok=true), or nothing.
func (w *walker) classifyEntry(parent dirItem, entry fs.DirEntry, full, rel string) (candidate, *dirItem, bool) {
	mode := entry.Type()

	if mode&fs.ModeSymlink != 0 {
		if !w.follow {
			return candidate{skipped: true}, nil, true
		}
		target, err := os.Stat(full)
		if err != nil {
			fe := newFileError(full, "follow symlink", err)
			if errors.Is(err, fs.ErrNotExist) {
				fe.Kind = KindBrokenSymlink
			}
			return candidate{err: fe}, nil, true
		}
		if target.IsDir() {
			canonical, err := filepath.EvalSymlinks(full)
			if err != nil {
				return candidate{err: newFileError(full, "resolve symlink", err)}, nil, true
			}
			return w.directory(parent, full, rel, canonical)
		}
		if !target.Mode().IsRegular() {
			return candidate{}, nil, false
		}
		return w.file(full, rel)
	}

	if entry.IsDir() {
		return w.directory(parent, full, rel, filepath.Join(parent.canonical, entry.Name()))
	}
	if !mode.IsRegular() {
		return candidate{}, nil, false
	}
	return w.file(full, rel)
}

func (w *walker) directory(parent dirItem, full, rel, canonical string) (candidate, *dirItem, bool) {
	if w.matcher.ExcludeDir(rel) {
		return candidate{}, nil, false
	}
	depth := parent.depth + 1
	if w.maxDepth > 0 && depth > w.maxDepth {
		return candidate{}, nil, false
	}
	if _, ok := w.visited[canonical]; ok {
		return candidate{}, nil, false
	}
	w.visited[canonical] = struct{}{}
	return candidate{}, &dirItem{path: full, rel: rel, canonical: canonical, depth: depth}, false
}

func (w *walker) file(full, rel string) (candidate, *dirItem, bool) {
	if !w.matcher.IncludeFile(rel) {
		return candidate{skipped: true}, nil, true
	}
	return candidate{path: full, rel: rel}, nil, true
}
