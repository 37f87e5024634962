package oracle

import (
	"context"
	"sync"
	"time"
)

// ScriptedOracle returns a fixed response (or error) per call. Used by tests
// and by callers that want a generation-free dry run. Delay, when set, is
// honored but interruptible by ctx.
type ScriptedOracle struct {
	Response string
	Err      error
	Delay    time.Duration

	mu      sync.Mutex
	prompts []string
}

// Generate records the prompt and returns the scripted response.
func (s *ScriptedOracle) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.Err != nil {
		return "", s.Err
	}
	return s.Response, nil
}

// Prompts returns a copy of all prompts seen so far.
func (s *ScriptedOracle) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
