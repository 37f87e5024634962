package store

import (
	"context"
	"testing"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

func newTestStore(t *testing.T, records []models.Record) *Store {
	t.Helper()
	corp := corpus.New(records)
	embedder := embedding.NewMockEmbedder(32)
	matrix, err := embedder.EmbedBatch(context.Background(), corp.Queries())
	if err != nil {
		t.Fatal(err)
	}
	index, err := vector.NewIndex(matrix)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(corp, embedder, index, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearch_returnsMostSimilarReply(t *testing.T) {
	s := newTestStore(t, []models.Record{
		{Query: "screen broken", Reply: "try restarting the device"},
		{Query: "forgot password", Reply: "reset your password via the emailed link"},
	})

	replies, err := s.Search(context.Background(), "broken screen", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	if replies[0] != "try restarting the device" {
		t.Errorf("got %q", replies[0])
	}
}

func TestSearch_atMostTopKDistinctAscending(t *testing.T) {
	s := newTestStore(t, []models.Record{
		{Query: "screen broken", Reply: "r0"},
		{Query: "forgot password", Reply: "r1"},
		{Query: "order late", Reply: "r2"},
		{Query: "refund request", Reply: "r3"},
	})

	results, err := s.SearchScored(context.Background(), "my order is late", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) > 3 {
		t.Fatalf("got %d results, want <= 3", len(results))
	}
	seen := make(map[int]bool)
	for i, r := range results {
		if seen[r.ID] {
			t.Errorf("duplicate corpus record %d", r.ID)
		}
		seen[r.ID] = true
		if i > 0 && results[i].Distance < results[i-1].Distance {
			t.Errorf("distances not non-decreasing at %d", i)
		}
	}
}

func TestSearch_topKLargerThanCorpus(t *testing.T) {
	s := newTestStore(t, []models.Record{
		{Query: "a", Reply: "ra"},
		{Query: "b", Reply: "rb"},
	})
	replies, err := s.Search(context.Background(), "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 2 {
		t.Errorf("expected all 2 replies, got %d", len(replies))
	}
}

func TestNew_sizeMismatch(t *testing.T) {
	corp := corpus.New([]models.Record{{Query: "a", Reply: "ra"}})
	index, err := vector.NewIndex([][]float32{{1, 0}, {0, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(corp, embedding.NewMockEmbedder(2), index, nil); err == nil {
		t.Error("expected error for index/corpus size mismatch")
	}
}
