// Package rag orchestrates retrieval-augmented generation: retrieve similar
// historical replies, build a prompt, invoke the generation oracle, and record
// the interaction.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/interaction"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/oracle"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Options configures an Engine.
type Options struct {
	// TopK is how many retrieved replies go into the prompt context.
	TopK int
	// OracleTimeout bounds a single generation; past it the call fails as an
	// oracle failure instead of hanging.
	OracleTimeout time.Duration
	// MaxInFlight bounds concurrent oracle calls so slow generations cannot
	// starve retrieval-only traffic.
	MaxInFlight int
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.OracleTimeout <= 0 {
		o.OracleTimeout = 60 * time.Second
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 4
	}
}

// Engine answers questions grounded in retrieved support replies.
type Engine struct {
	store  *store.Store
	oracle oracle.Oracle
	log    *interaction.Log
	logger *zap.Logger
	opts   Options
	slots  chan struct{}
}

// NewEngine creates an orchestrator over the given retrieval store, oracle,
// and interaction log.
func NewEngine(s *store.Store, orc oracle.Oracle, log *interaction.Log, opts Options, logger *zap.Logger) *Engine {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:  s,
		oracle: orc,
		log:    log,
		logger: logger,
		opts:   opts,
		slots:  make(chan struct{}, opts.MaxInFlight),
	}
}

// Answer retrieves grounding context for query, generates an answer, and
// appends one interaction record.
//
// Failure contract: retrieval and generation errors return ("", err) with
// generation errors matching ErrOracle, and nothing is logged. A log-write
// failure returns the generated answer together with an error matching
// ErrLogWrite — the answer is good, only its record was lost.
func (e *Engine) Answer(ctx context.Context, query string) (string, error) {
	replies, err := e.store.Search(ctx, query, e.opts.TopK)
	if err != nil {
		return "", fmt.Errorf("retrieve context: %w", err)
	}
	contextBlock := strings.Join(replies, "\n")
	prompt := BuildPrompt(contextBlock, query)

	raw, err := e.generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOracle, err)
	}
	answer := ExtractAnswer(raw)

	rec := models.Interaction{
		Timestamp: time.Now(),
		Query:     query,
		Context:   contextBlock,
		Response:  answer,
	}
	if err := e.log.Append(rec); err != nil {
		e.logger.Warn("interaction log append failed",
			zap.String("query", utils.Truncate(query, 80)),
			zap.Error(err))
		return answer, fmt.Errorf("%w: %w", ErrLogWrite, err)
	}

	e.logger.Debug("interaction recorded",
		zap.String("query", utils.Truncate(query, 80)),
		zap.Int("context_replies", len(replies)))
	return answer, nil
}

// Retrieve runs retrieval only, without touching the oracle or the log.
func (e *Engine) Retrieve(ctx context.Context, query string, topK int) ([]store.Result, error) {
	return e.store.SearchScored(ctx, query, topK)
}

// generate runs the oracle call inside a bounded worker slot with a timeout.
// Slot acquisition respects ctx so a caller that gives up stops waiting.
func (e *Engine) generate(ctx context.Context, prompt string) (string, error) {
	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-e.slots }()

	octx, cancel := context.WithTimeout(ctx, e.opts.OracleTimeout)
	defer cancel()
	return e.oracle.Generate(octx, prompt)
}

// LogPath returns the interaction log path (for the status surface).
func (e *Engine) LogPath() string {
	return e.log.Path()
}

// StoreSize returns the number of searchable corpus records.
func (e *Engine) StoreSize() int {
	return e.store.Size()
}
