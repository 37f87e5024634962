// Package interaction persists the append-only record of orchestrated
// query/response pairs.
//
// The log is a CSV file with columns timestamp, query, context, response and
// a header row that is present even when the log is empty. One handle is
// opened in append mode and held for the life of the process; appends are
// serialized behind a mutex, so concurrent callers cannot lose rows and each
// append is O(1) regardless of log size.
package interaction

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

var header = []string{"timestamp", "query", "context", "response"}

// Log is an append-only interaction log. Safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	path string
}

// Open opens (or creates) the log at path, writing the header row if the file
// is new or empty. Parent directories are created if needed.
func Open(path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("open interaction log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat interaction log: %w", err)
	}

	l := &Log{file: f, w: csv.NewWriter(f), path: path}
	if info.Size() == 0 {
		if err := l.writeRow(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write log header: %w", err)
		}
	}
	return l, nil
}

// Append writes one interaction row and flushes it to the file. The timestamp
// is serialized as ISO-8601 (RFC 3339) in UTC.
func (l *Log) Append(rec models.Interaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeRow([]string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		rec.Query,
		rec.Context,
		rec.Response,
	})
}

// writeRow writes and flushes a single row. Callers hold the mutex (or are
// the only owner, as in Open).
func (l *Log) writeRow(row []string) error {
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Path returns the file path the log writes to.
func (l *Log) Path() string {
	return l.path
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}

// Read loads all interactions from the log at path. Used by the status
// surface and by tests; the serving path never reads the log back.
func Read(path string) ([]models.Interaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open interaction log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	first, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("interaction log has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("read log header: %w", err)
	}
	if first[0] != header[0] {
		return nil, fmt.Errorf("unexpected log header %v", first)
	}

	var out []models.Interaction
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read log row %d: %w", len(out)+1, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", row[0], err)
		}
		out = append(out, models.Interaction{
			Timestamp: ts,
			Query:     row[1],
			Context:   row[2],
			Response:  row[3],
		})
	}
	return out, nil
}
