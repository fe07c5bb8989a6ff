package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAICompatible builds a chat model client for any endpoint speaking the
// OpenAI API, including self-hosted gateways. An empty baseURL means the
// official endpoint.
func OpenAICompatible(apiKey, baseURL, model string) (*openai.LLM, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	return llm, nil
}
