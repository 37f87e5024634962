// Package oracle wraps the external text-generation model behind a small
// request/response contract. The oracle is opaque, potentially slow, and —
// when sampling is enabled — non-deterministic: repeated calls with identical
// input may yield different output unless a fixed seed is configured.
package oracle

import "context"

// Oracle produces free text for a prompt.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SamplingConfig enumerates the decoding parameters sent with every request.
// With DoSample false the oracle decodes greedily (temperature 0) and output
// is reproducible; with DoSample true, Seed (when set) pins the sampler so
// test suites can assert exact output.
type SamplingConfig struct {
	MaxNewTokens int
	DoSample     bool
	Temperature  float32
	TopP         float32
	Seed         *int
}
