// Package vector provides an in-memory exact nearest-neighbor index.
package vector

import (
	"fmt"
	"sort"

	"github.com/hyperjump/kotae/pkg/utils"
)

// Hit is a single similarity search result. ID is the position of the matched
// vector in the slice the index was built from, which is also the position of
// the record it describes in the corpus.
type Hit struct {
	ID       int
	Distance float64
}

// Index is a brute-force exact nearest-neighbor index over fixed-dimension
// vectors using squared Euclidean distance. It is immutable once built:
// concurrent Search calls are safe without locking, and a new Index must be
// built whenever the vectors change.
type Index struct {
	dimensions int
	vectors    [][]float32
}

// NewIndex builds an index over vectors. All vectors must share the same
// non-zero dimension. The rows are copied; the caller's slice is not retained.
func NewIndex(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("cannot build index over zero vectors")
	}
	dimensions := len(vectors[0])
	if dimensions == 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	copied := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dimensions {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dimensions)
		}
		row := make([]float32, dimensions)
		copy(row, v)
		copied[i] = row
	}
	return &Index{dimensions: dimensions, vectors: copied}, nil
}

// Search returns the k nearest vectors to query, ascending by squared L2
// distance, ties broken by lower id. Returns min(k, Size()) hits; every
// returned id is in [0, Size()). Cost is O(N·D) per call.
func (idx *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != idx.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), idx.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}

	hits := make([]Hit, len(idx.vectors))
	for i, vec := range idx.vectors {
		hits[i] = Hit{ID: i, Distance: utils.SquaredL2(query, vec)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Size returns the number of vectors in the index.
func (idx *Index) Size() int {
	return len(idx.vectors)
}

// Dimensions returns the vector dimension the index was built with.
func (idx *Index) Dimensions() int {
	return idx.dimensions
}
