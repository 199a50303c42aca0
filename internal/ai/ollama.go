package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

const (
	defaultOllamaModel = "all-minilm"
	defaultOllamaURL   = "http://localhost:11434"
)

// queryEmbedder is the part of langchaingo's embedder used here.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OllamaClient embeds through a local Ollama server. all-minilm is the
// default since it is the model family the published corpus was built with.
type OllamaClient struct {
	config   *ClientConfig
	embedder queryEmbedder
}

func NewOllamaClient(config *ClientConfig) (*OllamaClient, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}
	if config.EmbedModel == "" {
		config.EmbedModel = defaultOllamaModel
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultOllamaURL
	}
	if config.Dim == 0 && config.EmbedModel == defaultOllamaModel {
		config.Dim = 384
	}

	llm, err := ollama.New(
		ollama.WithServerURL(config.BaseURL),
		ollama.WithModel(config.EmbedModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
	}

	return &OllamaClient{config: config, embedder: emb}, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(v) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return v, nil
}

func (c *OllamaClient) Dim() int {
	return c.config.Dim
}
