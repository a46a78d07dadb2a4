// Package journal implements the append-only, fsync-per-entry transaction log
// that makes every organize move reversible.
//
// Exactly one Writer may hold a journal at a time: an in-process mutex orders
// appends and a file lock keeps other processes out. Entries are never
// rewritten; the only truncation removes bytes that were never acknowledged.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harrison/projsort/internal/filelock"
	"github.com/harrison/projsort/internal/models"
)

var (
	// ErrDurability means an entry could not be made durable. Callers must
	// stop mutating the filesystem when they see it.
	ErrDurability = errors.New("journal write not durable")

	// ErrLocked means another process holds the journal lock.
	ErrLocked = errors.New("journal is locked by another process")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("journal is closed")
)

// Writer appends entries to one journal file.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	lock   *filelock.FileLock
	path   string
	runID  string
	nextID int64
	now    func() time.Time

	// size is the offset just past the last acknowledged entry.
	size int64
	// failed is set by the first write or fsync error; later appends
	// return it without touching the file.
	failed error
}

// Open acquires lockPath and opens path for appending, creating it if
// needed. Operation ids continue from the highest id already in the file.
func Open(path, lockPath string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	lock := filelock.NewFileLock(lockPath)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}

	entries, err := Read(path)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("read existing journal: %w", err)
	}
	var maxID int64
	for _, e := range entries {
		if e.OperationID > maxID {
			maxID = e.OperationID
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := trimTornTail(file); err != nil {
		file.Close()
		lock.Unlock()
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		lock.Unlock()
		return nil, fmt.Errorf("stat journal: %w", err)
	}

	return &Writer{
		file:   file,
		lock:   lock,
		path:   path,
		runID:  uuid.NewString(),
		nextID: maxID + 1,
		now:    func() time.Time { return time.Now().UTC() },
		size:   info.Size(),
	}, nil
}

// trimTornTail drops an unterminated final fragment left by a process that
// died mid-append. Such a fragment was never acknowledged, so it is not an
// entry; every complete line is kept.
func trimTornTail(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size
	for end > 0 {
		start := end - chunk
		if start < 0 {
			start = 0
		}
		n, err := file.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read journal tail: %w", err)
		}
		if idx := bytes.LastIndexByte(buf[:n], '\n'); idx >= 0 {
			keep := start + int64(idx) + 1
			if keep == size {
				return nil
			}
			return truncate(file, keep)
		}
		end = start
	}
	return truncate(file, 0)
}

func truncate(file *os.File, size int64) error {
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("%w: trim torn entry: %v", ErrDurability, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", ErrDurability, err)
	}
	return nil
}

// Path returns the journal file path.
func (w *Writer) Path() string {
	return w.path
}

// RunID identifies this writer's session in every entry it appends.
func (w *Writer) RunID() string {
	return w.runID
}

// Intent durably records a planned mutation and returns its operation id.
// The mutation may only start after Intent returns nil.
func (w *Writer) Intent(e models.JournalEntry) (models.JournalEntry, error) {
	e.OperationID = 0
	e.Status = models.JournalPlanned
	return w.Append(e)
}

// Outcome durably records the result of the operation opened by intent.
func (w *Writer) Outcome(intent models.JournalEntry, status string, cause error) (models.JournalEntry, error) {
	e := intent
	e.Status = status
	e.Error = ""
	if cause != nil {
		e.Error = cause.Error()
	}
	return w.Append(e)
}

// Append writes e as one line and fsyncs before returning. A zero
// OperationID is assigned the next id; RunID and Timestamp are filled in
// when empty.
//
// After a failed write or fsync the writer is poisoned: the unacknowledged
// bytes are cut back off the file and every later Append returns
// ErrDurability.
func (w *Writer) Append(e models.JournalEntry) (models.JournalEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return e, ErrClosed
	}
	if w.failed != nil {
		return e, w.failed
	}

	if e.OperationID == 0 {
		e.OperationID = w.nextID
		w.nextID++
	}
	if e.RunID == "" {
		e.RunID = w.runID
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = w.now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.file.Write(data); err != nil {
		return e, w.fail(fmt.Errorf("%w: write: %v", ErrDurability, err))
	}
	if err := w.file.Sync(); err != nil {
		return e, w.fail(fmt.Errorf("%w: fsync: %v", ErrDurability, err))
	}
	w.size += int64(len(data))
	return e, nil
}

// fail poisons the writer and drops anything past the last acknowledged
// entry so a partial line cannot end up in the middle of the journal.
func (w *Writer) fail(err error) error {
	w.failed = err
	if terr := os.Truncate(w.path, w.size); terr != nil {
		w.failed = fmt.Errorf("%w (truncate to %d: %v)", err, w.size, terr)
	}
	return w.failed
}

// Close syncs and closes the file and releases the lock.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	var errs []error
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync journal: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	w.file = nil
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
