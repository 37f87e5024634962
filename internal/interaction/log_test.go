package interaction

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func TestOpen_createsFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(data)); got != "timestamp,query,context,response" {
		t.Errorf("new log should contain only the header, got %q", got)
	}
}

func TestAppend_oneRowPerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	const n = 5
	for i := 0; i < n; i++ {
		err := l.Append(models.Interaction{
			Timestamp: time.Now(),
			Query:     fmt.Sprintf("query %d", i),
			Context:   "ctx line 1\nctx line 2",
			Response:  "an answer",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	rows, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != n {
		t.Fatalf("got %d rows, want %d", len(rows), n)
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].Timestamp.Before(rows[i-1].Timestamp) {
			t.Errorf("timestamps decrease at row %d", i)
		}
	}
	if rows[0].Query != "query 0" || rows[0].Context != "ctx line 1\nctx line 2" {
		t.Errorf("row 0 corrupted: %+v", rows[0])
	}
}

func TestAppend_survivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = l.Append(models.Interaction{Timestamp: time.Now(), Query: "first", Response: "a"})
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening must append, not truncate, and must not duplicate the header.
	l2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = l2.Append(models.Interaction{Timestamp: time.Now(), Query: "second", Response: "b"})
	_ = l2.Close()

	rows, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Query != "first" || rows[1].Query != "second" {
		t.Errorf("rows: %+v", rows)
	}
}

func TestAppend_concurrentWritersLoseNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.csv")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 8
	const perWriter = 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = l.Append(models.Interaction{
					Timestamp: time.Now(),
					Query:     fmt.Sprintf("w%d-q%d", w, i),
					Context:   "context",
					Response:  "response",
				})
			}
		}(w)
	}
	wg.Wait()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	rows, err := Read(path)
	if err != nil {
		t.Fatalf("log corrupted under concurrent appends: %v", err)
	}
	if len(rows) != writers*perWriter {
		t.Errorf("got %d rows, want %d", len(rows), writers*perWriter)
	}
}

func TestRead_missingFile(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing log")
	}
}
