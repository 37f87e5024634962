// Package store composes the corpus, embedder, and similarity index into the
// retrieval API: free text in, most similar historical replies out.
package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/vector"
)

// Result is a scored retrieval hit. Distance is the squared L2 distance
// between the query embedding and the matched record's embedding; lower is
// closer. ID is the record's corpus position.
type Result struct {
	ID       int
	Question string
	Reply    string
	Distance float64
}

// Store serves similarity search over the corpus. All fields are read-only
// after construction, so concurrent searches need no locking.
type Store struct {
	corpus   *corpus.Corpus
	embedder embedding.Embedder
	index    *vector.Index
	logger   *zap.Logger
}

// New creates a store. The index must have been built from the embedding
// matrix of corp, in corpus order.
func New(corp *corpus.Corpus, embedder embedding.Embedder, index *vector.Index, logger *zap.Logger) (*Store, error) {
	if index.Size() != corp.Len() {
		return nil, fmt.Errorf("index has %d vectors but corpus has %d records", index.Size(), corp.Len())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{corpus: corp, embedder: embedder, index: index, logger: logger}, nil
}

// Search returns up to topK historical replies most similar to text, in
// ascending distance order. Scores are dropped from this result; callers that
// need them use SearchScored.
func (s *Store) Search(ctx context.Context, text string, topK int) ([]string, error) {
	results, err := s.SearchScored(ctx, text, topK)
	if err != nil {
		return nil, err
	}
	replies := make([]string, len(results))
	for i, r := range results {
		replies[i] = r.Reply
	}
	return replies, nil
}

// SearchScored embeds text as a single-item batch, queries the index, and maps
// hits back to corpus records. Any hit whose id falls outside the corpus is
// dropped rather than surfaced; the index and corpus are built together and
// should never diverge, but a stale id must not become a panic.
func (s *Store) SearchScored(ctx context.Context, text string, topK int) ([]Result, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := s.index.Search(vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		rec, ok := s.corpus.Record(hit.ID)
		if !ok {
			s.logger.Warn("dropping out-of-range index hit",
				zap.Int("id", hit.ID),
				zap.Int("corpus_size", s.corpus.Len()))
			continue
		}
		results = append(results, Result{
			ID:       hit.ID,
			Question: rec.Query,
			Reply:    rec.Reply,
			Distance: hit.Distance,
		})
	}
	return results, nil
}

// Size returns the number of searchable records.
func (s *Store) Size() int {
	return s.corpus.Len()
}
