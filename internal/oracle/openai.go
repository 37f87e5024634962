package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// APIKeyEnv is the environment variable holding the generation API key.
// Absence is a startup configuration error, checked before any query is served.
const APIKeyEnv = "OPENAI_API_KEY"

// OpenAIOracle generates answers through an OpenAI-compatible chat completion
// endpoint. BaseURL may point at any compatible server (e.g. a local model).
type OpenAIOracle struct {
	client   *openai.Client
	model    string
	sampling SamplingConfig
}

// NewOpenAIOracle creates an oracle. The API key is read from APIKeyEnv.
func NewOpenAIOracle(model, baseURL string, sampling SamplingConfig) (*OpenAIOracle, error) {
	key := os.Getenv(APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%s environment variable not set", APIKeyEnv)
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIOracle{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		sampling: sampling,
	}, nil
}

// Generate sends the prompt and returns the raw model output. The caller owns
// timeout/cancellation via ctx.
func (o *OpenAIOracle) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: o.sampling.MaxNewTokens,
	}
	if o.sampling.DoSample {
		req.Temperature = o.sampling.Temperature
		req.TopP = o.sampling.TopP
		req.Seed = o.sampling.Seed
	} else {
		// Greedy decoding: reproducible output for regression tests.
		req.Temperature = 0
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
