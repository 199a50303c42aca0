package ai

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Client turns text into an embedding vector.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderOllama   Provider = "ollama"
	ProviderStub     Provider = "stub"
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	APIKey     string
	EmbedModel string
	Dim        int
	ProjectID  string
	Provider   Provider
	Location   string
	BaseURL    string
}

// ParseProvider maps a configured provider name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "vertexai", "google":
		return ProviderVertexAI, nil
	case "ollama":
		return ProviderOllama, nil
	case "stub":
		return ProviderStub, nil
	default:
		return "", errors.New("unsupported provider: " + name)
	}
}

// NewClient creates a new AI client based on configuration
func NewClient(config *ClientConfig) (Client, error) {
	if config == nil {
		return nil, errors.New("client config is required")
	}

	ctx := context.Background()
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	case ProviderOllama:
		return NewOllamaClient(config)
	case ProviderStub:
		return NewStubClient(config.Dim), nil
	default:
		return nil, errors.New("unsupported provider: " + string(config.Provider))
	}
}

// StubClient hashes tokens into a fixed number of buckets. Texts sharing
// words get similar vectors, which is enough for offline runs and tests.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	return &StubClient{dim: dim}
}

// Embed returns an L2-normalized bag-of-words vector. Text without any
// letters or digits yields the zero vector.
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.dim <= 0 {
		return nil, errors.New("stub embedding dimension must be positive")
	}
	v := make([]float32, s.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		v[int(h.Sum32()%uint32(s.dim))]++
	}

	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v, nil
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v, nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
