// Package embedding provides text embedding via ONNX, a deterministic mock,
// and the persisted corpus embedding matrix.
package embedding

import "context"

// Embedder produces vector embeddings for text. Embedding is a pure function
// of (model, text): the same text embedded twice with the same model yields
// the same vector. Determinism is assumed of implementations, not enforced.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
