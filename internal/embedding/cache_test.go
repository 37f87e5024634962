package embedding

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
)

func testCorpus() *corpus.Corpus {
	return corpus.New([]models.Record{
		{Query: "screen broken", Reply: "try restarting the device"},
		{Query: "forgot password", Reply: "reset your password via the emailed link"},
		{Query: "order not arrived", Reply: "check the tracking number in your confirmation email"},
	})
}

func TestCache_roundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.f32")
	embedder := NewMockEmbedder(8)
	corp := testCorpus()
	ctx := context.Background()

	built, err := NewCache(path, "mock", 2, nil).LoadOrBuild(ctx, corp, embedder)
	if err != nil {
		t.Fatal(err)
	}
	if len(built) != corp.Len() {
		t.Fatalf("built %d rows, want %d", len(built), corp.Len())
	}

	// A fresh Cache must load from disk, not rebuild.
	loaded, err := NewCache(path, "mock", 2, nil).LoadOrBuild(ctx, corp, embedder)
	if err != nil {
		t.Fatal(err)
	}
	for i := range built {
		for j := range built[i] {
			if math.Abs(float64(built[i][j]-loaded[i][j])) > 1e-7 {
				t.Fatalf("row %d dim %d: built %f, loaded %f", i, j, built[i][j], loaded[i][j])
			}
		}
	}
}

func TestCache_corpusChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.f32")
	embedder := NewMockEmbedder(8)
	ctx := context.Background()

	cache := NewCache(path, "mock", 32, nil)
	if _, err := cache.LoadOrBuild(ctx, testCorpus(), embedder); err != nil {
		t.Fatal(err)
	}

	changed := corpus.New([]models.Record{
		{Query: "screen broken", Reply: "try restarting the device"},
		{Query: "billing question", Reply: "contact billing support"},
	})
	if _, err := cache.load(changed, embedder.Dimensions()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt for changed corpus, got %v", err)
	}

	// LoadOrBuild must transparently rebuild for the new corpus.
	matrix, err := cache.LoadOrBuild(ctx, changed, embedder)
	if err != nil {
		t.Fatal(err)
	}
	if len(matrix) != 2 {
		t.Errorf("rebuilt matrix has %d rows, want 2", len(matrix))
	}
}

func TestCache_modelChangeInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.f32")
	embedder := NewMockEmbedder(8)
	corp := testCorpus()
	ctx := context.Background()

	if _, err := NewCache(path, "model-a", 32, nil).LoadOrBuild(ctx, corp, embedder); err != nil {
		t.Fatal(err)
	}
	other := NewCache(path, "model-b", 32, nil)
	if _, err := other.load(corp, embedder.Dimensions()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt for model change, got %v", err)
	}
}

func TestCache_missWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.f32")
	cache := NewCache(path, "mock", 32, nil)
	if _, err := cache.load(testCorpus(), 8); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestCache_truncatedMatrixRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.f32")
	embedder := NewMockEmbedder(8)
	corp := testCorpus()
	ctx := context.Background()

	cache := NewCache(path, "mock", 32, nil)
	if _, err := cache.LoadOrBuild(ctx, corp, embedder); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data[:len(data)-4], 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.load(corp, embedder.Dimensions()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt for truncated matrix, got %v", err)
	}
}

func TestCache_noTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.f32")
	cache := NewCache(path, "mock", 32, nil)
	if _, err := cache.LoadOrBuild(context.Background(), testCorpus(), NewMockEmbedder(8)); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCache_concurrentBuilders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.f32")
	corp := testCorpus()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cache := NewCache(path, "mock", 2, nil)
			_, errs[n] = cache.LoadOrBuild(ctx, corp, NewMockEmbedder(8))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("builder %d: %v", i, err)
		}
	}
	loaded, err := NewCache(path, "mock", 2, nil).load(corp, 8)
	if err != nil {
		t.Fatalf("cache not loadable after concurrent builds: %v", err)
	}
	if len(loaded) != corp.Len() {
		t.Errorf("loaded %d rows, want %d", len(loaded), corp.Len())
	}
}
