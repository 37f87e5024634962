// Package corpus loads the historical support-reply corpus.
//
// The corpus is a two-column CSV (customer_query, support_reply) with a header
// row. Row order is stable across runs and is load-bearing: every downstream
// artifact (embedding matrix, similarity index) addresses records by position.
// The corpus is loaded once per session and is read-only afterwards.
package corpus

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/kotae/internal/models"
)

// Header columns expected in the corpus CSV, in order.
var header = []string{"customer_query", "support_reply"}

// Corpus is an immutable, position-addressable sequence of support records.
type Corpus struct {
	records []models.Record
	hash    string
}

// Load reads and parses the corpus CSV at path.
func Load(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a corpus from r. The first row must be the expected header.
func Parse(r io.Reader) (*Corpus, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	first, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read corpus header: %w", err)
	}
	if len(first) != 2 || first[0] != header[0] || first[1] != header[1] {
		return nil, fmt.Errorf("unexpected corpus header %v, want %v", first, header)
	}

	h := sha256.New()
	var records []models.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read corpus row %d: %w", len(records)+1, err)
		}
		records = append(records, models.Record{Query: row[0], Reply: row[1]})
		h.Write([]byte(row[0]))
		h.Write([]byte{0x1f})
		h.Write([]byte(row[1]))
		h.Write([]byte{0x1e})
	}

	return &Corpus{
		records: records,
		hash:    hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// New builds an in-memory corpus from records. Used by tests and callers that
// assemble a corpus without a backing file.
func New(records []models.Record) *Corpus {
	h := sha256.New()
	for _, rec := range records {
		h.Write([]byte(rec.Query))
		h.Write([]byte{0x1f})
		h.Write([]byte(rec.Reply))
		h.Write([]byte{0x1e})
	}
	return &Corpus{
		records: append([]models.Record(nil), records...),
		hash:    hex.EncodeToString(h.Sum(nil)),
	}
}

// Len returns the number of records.
func (c *Corpus) Len() int {
	return len(c.records)
}

// Record returns the record at position i and whether i is in range.
func (c *Corpus) Record(i int) (models.Record, bool) {
	if i < 0 || i >= len(c.records) {
		return models.Record{}, false
	}
	return c.records[i], true
}

// Queries returns the customer_query column in corpus order. These are the
// texts that get embedded: a search query is matched against past questions,
// and the paired replies are what retrieval returns.
func (c *Corpus) Queries() []string {
	out := make([]string, len(c.records))
	for i, rec := range c.records {
		out[i] = rec.Query
	}
	return out
}

// Hash returns a content hash over all records in order. The embedding cache
// stores this hash so a reloaded cache can be checked against the live corpus.
func (c *Corpus) Hash() string {
	return c.hash
}
