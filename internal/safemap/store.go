// Package safemap persists the local-only safe_id to path table.
//
// The table is written during scan and read by every later stage to turn
// pseudonymous identifiers back into real paths. It never leaves the machine.
package safemap

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a safe_id has no recorded path.
var ErrNotFound = errors.New("safe_id not found in safe map")

// Entry is one safe_id to path mapping.
type Entry struct {
	SafeID string
	Path   string
}

// Store manages the SQLite safe map. Writes are serialized in-process;
// readers run concurrently under WAL.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens the safe map at dbPath. ":memory:" is accepted.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutBatch records entries in one transaction. A safe_id already present is
// left untouched: the id is a pure function of the path, so the stored path
// is already correct.
func (s *Store) PutBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin safe map batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO safe_map (safe_id, path) VALUES (?, ?) ON CONFLICT(safe_id) DO NOTHING`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare safe map insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.SafeID, e.Path); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert safe map entry %s: %w", e.SafeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit safe map batch: %w", err)
	}
	return nil
}

// Put records a single mapping.
func (s *Store) Put(ctx context.Context, safeID, path string) error {
	return s.PutBatch(ctx, []Entry{{SafeID: safeID, Path: path}})
}

// Resolve returns the path for safeID, or ErrNotFound.
func (s *Store) Resolve(ctx context.Context, safeID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var path string
	err := s.db.QueryRowContext(ctx, `SELECT path FROM safe_map WHERE safe_id = ?`, safeID).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, safeID)
	}
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", safeID, err)
	}
	return path, nil
}

// ResolveMany resolves ids in one pass. Unknown ids are absent from the
// result rather than an error; callers decide how to report them.
func (s *Store) ResolveMany(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// stay well under SQLITE_MAX_VARIABLE_NUMBER
	const chunk = 500
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		part := ids[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(part)), ",")
		args := make([]interface{}, len(part))
		for i, id := range part {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx,
			`SELECT safe_id, path FROM safe_map WHERE safe_id IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("resolve batch: %w", err)
		}
		for rows.Next() {
			var id, path string
			if err := rows.Scan(&id, &path); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan safe map row: %w", err)
			}
			out[id] = path
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate safe map rows: %w", err)
		}
		rows.Close()
	}
	return out, nil
}

// Len returns the number of recorded mappings.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM safe_map`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count safe map: %w", err)
	}
	return n, nil
}
