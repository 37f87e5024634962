package embedding

import (
	"context"
	"testing"
)

func TestMockEmbedder_deterministic(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, err := e.Embed(ctx, "screen broken")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Embed(ctx, "screen broken")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("dim %d: %f != %f", i, a[i], b[i])
		}
	}
}

func TestMockEmbedder_wordOrderInvariant(t *testing.T) {
	e := NewMockEmbedder(16)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "screen broken")
	b, _ := e.Embed(ctx, "broken screen")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bag-of-words embeddings should match: dim %d: %f != %f", i, a[i], b[i])
		}
	}
}

func TestMockEmbedder_unitNorm(t *testing.T) {
	e := NewMockEmbedder(16)
	v, _ := e.Embed(context.Background(), "hello world")
	var sum float64
	for _, x := range v {
		sum += float64(x * x)
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("norm^2 = %f, want 1", sum)
	}
}

func TestMockEmbedder_batchMatchesSingle(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()
	batch, err := e.EmbedBatch(ctx, []string{"a b", "c d"})
	if err != nil {
		t.Fatal(err)
	}
	single, _ := e.Embed(ctx, "c d")
	for i := range single {
		if batch[1][i] != single[i] {
			t.Fatalf("batch and single embeddings differ at dim %d", i)
		}
	}
}
