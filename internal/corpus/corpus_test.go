package corpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

const sampleCSV = `customer_query,support_reply
screen broken,try restarting the device
forgot password,reset your password via the emailed link
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("Len=%d", c.Len())
	}
	rec, ok := c.Record(0)
	if !ok || rec.Query != "screen broken" || rec.Reply != "try restarting the device" {
		t.Errorf("record 0: %+v", rec)
	}
	if _, ok := c.Record(2); ok {
		t.Error("out-of-range record should not be ok")
	}
	if _, ok := c.Record(-1); ok {
		t.Error("negative index should not be ok")
	}
	queries := c.Queries()
	if len(queries) != 2 || queries[1] != "forgot password" {
		t.Errorf("queries: %v", queries)
	}
}

func TestParse_badHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("question,answer\na,b\n"))
	if err == nil {
		t.Error("expected header error")
	}
}

func TestParse_quotedFields(t *testing.T) {
	csv := "customer_query,support_reply\n\"order not arrived, late\",\"check tracking, then contact us\"\n"
	c, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := c.Record(0)
	if rec.Query != "order not arrived, late" {
		t.Errorf("quoted query: %q", rec.Query)
	}
}

func TestHash_changesWithContent(t *testing.T) {
	a := New([]models.Record{{Query: "q1", Reply: "r1"}})
	b := New([]models.Record{{Query: "q1", Reply: "r2"}})
	if a.Hash() == b.Hash() {
		t.Error("different corpora should have different hashes")
	}
	c := New([]models.Record{{Query: "q1", Reply: "r1"}})
	if a.Hash() != c.Hash() {
		t.Error("identical corpora should have identical hashes")
	}
}

func TestLoad_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	parsed, _ := Parse(strings.NewReader(sampleCSV))
	if c.Hash() != parsed.Hash() {
		t.Error("hash should not depend on source (file vs reader)")
	}
}

func TestEnsureLocal_existingFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0600); err != nil {
		t.Fatal(err)
	}
	if err := EnsureLocal(context.Background(), path, ""); err != nil {
		t.Errorf("existing file should not require a URL: %v", err)
	}
}

func TestEnsureLocal_downloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "corpus.csv")
	if err := EnsureLocal(context.Background(), path, srv.URL); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Errorf("Len=%d", c.Len())
	}
}

func TestEnsureLocal_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "corpus.csv")
	if err := EnsureLocal(context.Background(), path, srv.URL); err == nil {
		t.Error("expected error on server failure")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no corpus file should exist after a failed download")
	}
}
