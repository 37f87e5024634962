package embedding

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/corpus"
)

// ErrCacheMiss indicates no persisted matrix exists yet.
var ErrCacheMiss = errors.New("embedding cache miss")

// ErrCacheCorrupt indicates a persisted matrix exists but cannot be trusted:
// unreadable, truncated, or built for a different corpus, model, or dimension.
var ErrCacheCorrupt = errors.New("embedding cache corrupt or stale")

// Cache persists the corpus embedding matrix as a raw little-endian float32
// array of shape [N, D], row order = corpus order. A yaml sidecar records the
// corpus hash, model, and shape so a reloaded matrix is checked against the
// live corpus instead of being trusted verbatim.
type Cache struct {
	path      string
	model     string
	batchSize int
	logger    *zap.Logger
}

// cacheMeta is the sidecar written next to the matrix file.
type cacheMeta struct {
	Rows         int    `yaml:"rows"`
	Dimensions   int    `yaml:"dimensions"`
	CorpusSHA256 string `yaml:"corpus_sha256"`
	Model        string `yaml:"model"`
}

// NewCache creates a cache rooted at path. model identifies the embedder (the
// configured model path or name) so a model swap invalidates the cache.
func NewCache(path, model string, batchSize int, logger *zap.Logger) *Cache {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{path: path, model: model, batchSize: batchSize, logger: logger}
}

// LoadOrBuild returns the embedding matrix for corp, one row per record in
// corpus order. A valid persisted matrix is loaded; otherwise the corpus is
// embedded in batches, persisted atomically, and returned. Concurrent builders
// racing on the same path are serialized with a file lock; the loser of the
// race loads the winner's matrix instead of rebuilding.
func (c *Cache) LoadOrBuild(ctx context.Context, corp *corpus.Corpus, embedder Embedder) ([][]float32, error) {
	matrix, err := c.load(corp, embedder.Dimensions())
	if err == nil {
		c.logger.Info("embedding cache loaded",
			zap.String("path", c.path),
			zap.Int("rows", len(matrix)))
		return matrix, nil
	}
	if errors.Is(err, ErrCacheCorrupt) {
		c.logger.Warn("embedding cache invalid, rebuilding", zap.Error(err))
	}

	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("acquire cache build lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished the build while we waited.
	if matrix, err := c.load(corp, embedder.Dimensions()); err == nil {
		return matrix, nil
	}

	matrix, err = c.build(ctx, corp, embedder)
	if err != nil {
		return nil, err
	}
	if err := c.persist(matrix, corp, embedder.Dimensions()); err != nil {
		return nil, err
	}
	c.logger.Info("embedding cache built",
		zap.String("path", c.path),
		zap.Int("rows", len(matrix)),
		zap.Int("batch_size", c.batchSize))
	return matrix, nil
}

// load reads and validates the persisted matrix against the live corpus.
func (c *Cache) load(corp *corpus.Corpus, dimensions int) ([][]float32, error) {
	metaBytes, err := os.ReadFile(c.path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: read meta: %v", ErrCacheCorrupt, err)
	}
	var meta cacheMeta
	if err := yaml.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: parse meta: %v", ErrCacheCorrupt, err)
	}
	if meta.Model != c.model {
		return nil, fmt.Errorf("%w: built for model %q, want %q", ErrCacheCorrupt, meta.Model, c.model)
	}
	if meta.Dimensions != dimensions {
		return nil, fmt.Errorf("%w: dimension %d, want %d", ErrCacheCorrupt, meta.Dimensions, dimensions)
	}
	if meta.Rows != corp.Len() {
		return nil, fmt.Errorf("%w: %d rows, corpus has %d records", ErrCacheCorrupt, meta.Rows, corp.Len())
	}
	if meta.CorpusSHA256 != corp.Hash() {
		return nil, fmt.Errorf("%w: corpus content changed since cache was built", ErrCacheCorrupt)
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: read matrix: %v", ErrCacheCorrupt, err)
	}
	if len(data) != meta.Rows*meta.Dimensions*4 {
		return nil, fmt.Errorf("%w: matrix file is %d bytes, want %d",
			ErrCacheCorrupt, len(data), meta.Rows*meta.Dimensions*4)
	}

	matrix := make([][]float32, meta.Rows)
	for i := 0; i < meta.Rows; i++ {
		row := data[i*meta.Dimensions*4 : (i+1)*meta.Dimensions*4]
		matrix[i] = bytesToFloat32Slice(row)
	}
	return matrix, nil
}

// build embeds the corpus queries in fixed-size batches to bound peak memory.
// Embedder errors propagate; no partial matrix is ever persisted.
func (c *Cache) build(ctx context.Context, corp *corpus.Corpus, embedder Embedder) ([][]float32, error) {
	texts := corp.Queries()
	matrix := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		matrix = append(matrix, batch...)
	}
	return matrix, nil
}

// persist writes the matrix and its sidecar, each to a temp file promoted by
// rename, so a crash mid-write never leaves a readable partial cache.
func (c *Cache) persist(matrix [][]float32, corp *corpus.Corpus, dimensions int) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".embeddings-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp matrix: %w", err)
	}
	defer os.Remove(tmp.Name())
	for i, row := range matrix {
		if len(row) != dimensions {
			tmp.Close()
			return fmt.Errorf("row %d has dimension %d, want %d", i, len(row), dimensions)
		}
		if _, err := tmp.Write(float32SliceToBytes(row)); err != nil {
			tmp.Close()
			return fmt.Errorf("write matrix row %d: %w", i, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp matrix: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("promote matrix: %w", err)
	}

	meta := cacheMeta{
		Rows:         len(matrix),
		Dimensions:   dimensions,
		CorpusSHA256: corp.Hash(),
		Model:        c.model,
	}
	metaBytes, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	metaTmp, err := os.CreateTemp(filepath.Dir(c.path), ".embeddings-meta-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp meta: %w", err)
	}
	defer os.Remove(metaTmp.Name())
	if _, err := metaTmp.Write(metaBytes); err != nil {
		metaTmp.Close()
		return fmt.Errorf("write meta: %w", err)
	}
	if err := metaTmp.Close(); err != nil {
		return fmt.Errorf("close temp meta: %w", err)
	}
	if err := os.Rename(metaTmp.Name(), c.path+".meta"); err != nil {
		return fmt.Errorf("promote meta: %w", err)
	}
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
