package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// fixedWidthModels ignore the dimensions parameter and always return vectors
// of this width.
var fixedWidthModels = map[string]int{
	"text-embedding-ada-002": 1536,
}

type OpenAIClient struct {
	config *ClientConfig
	http   *http.Client
}

func NewOpenAIClient(config *ClientConfig) *OpenAIClient {
	// Set default model if not provided
	if config.EmbedModel == "" {
		config.EmbedModel = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultOpenAIBaseURL
	}
	if config.Dim == 0 {
		// Set default dimensions based on the embedding model
		switch config.EmbedModel {
		case "text-embedding-3-large":
			config.Dim = 3072
		default:
			config.Dim = 1536
		}
	}
	if width, ok := fixedWidthModels[config.EmbedModel]; ok && config.Dim != width {
		log.Warn().
			Str("model", config.EmbedModel).
			Int("configured_dim", config.Dim).
			Int("model_dim", width).
			Msg("model has a fixed output width, configured dimension ignored")
		config.Dim = width
	}

	transport := &http.Transport{}

	// Check for environment variable to skip TLS verification (for corporate proxies, etc.)
	if skipTLS, _ := strconv.ParseBool(os.Getenv("PROJECTSEARCH_SKIP_TLS_VERIFY")); skipTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	httpClient := &http.Client{
		Timeout:   20 * time.Second,
		Transport: transport,
	}

	return &OpenAIClient{
		config: config,
		http:   httpClient,
	}
}

// Embed implements the embedding functionality
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.config.APIKey == "" {
		return nil, errors.New("PROVIDER_API_KEY unset")
	}

	payload := map[string]any{
		"input": text,
		"model": c.config.EmbedModel,
	}
	// Only the v3 models accept a reduced output size.
	if strings.HasPrefix(c.config.EmbedModel, "text-embedding-3") {
		payload["dimensions"] = c.config.Dim
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.config.BaseURL, "/")+"/embeddings", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("openai embedding non-200: " + resp.Status)
	}

	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, errors.New("no embedding")
	}
	return out.Data[0].Embedding, nil
}

func (c *OpenAIClient) Dim() int {
	return c.config.Dim
}

// setHeaders sets common headers for OpenAI requests
func (c *OpenAIClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	if strings.HasPrefix(c.config.APIKey, "sk-proj-") && c.config.ProjectID != "" {
		req.Header.Set("OpenAI-Project", c.config.ProjectID)
	}
}
