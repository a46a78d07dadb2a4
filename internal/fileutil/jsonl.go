package fileutil

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/harrison/projsort/internal/filelock"
)

// maxLineBytes bounds a single JSONL record; content hints keep records well below it.
const maxLineBytes = 4 << 20

// JSONLWriter streams records to a line-delimited JSON file.
// Records are buffered and flushed to disk on Flush and Close so a
// scan never holds the whole result set in memory.
type JSONLWriter[T any] struct {
	file    *os.File
	buf     *bufio.Writer
	encoder *json.Encoder
	count   int
}

// CreateJSONL truncates (or creates) path and returns a writer for it.
func CreateJSONL[T any](path string) (*JSONLWriter[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	return &JSONLWriter[T]{file: f, buf: buf, encoder: encoder}, nil
}

// Write appends one record.
func (w *JSONLWriter[T]) Write(record T) error {
	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *JSONLWriter[T]) Count() int {
	return w.count
}

// Flush pushes buffered records to the file and syncs it.
func (w *JSONLWriter[T]) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *JSONLWriter[T]) Close() error {
	flushErr := w.Flush()
	closeErr := w.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadJSONL streams records from path, calling fn for each one in file order.
// Blank lines are ignored. A decode error reports the offending line number.
func ReadJSONL[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return DecodeJSONL(f, fn)
}

// DecodeJSONL is ReadJSONL over an arbitrary reader.
func DecodeJSONL[T any](r io.Reader, fn func(T) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read line %d: %w", line+1, err)
	}
	return nil
}

// LoadJSONL reads every record of path into memory.
func LoadJSONL[T any](path string) ([]T, error) {
	var out []T
	err := ReadJSONL(path, func(record T) error {
		out = append(out, record)
		return nil
	})
	return out, err
}

// WriteJSON writes v as indented JSON using an atomic temp-file rename.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	return filelock.AtomicWrite(path, append(data, '\n'))
}

// ReadJSON decodes a JSON document from path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
