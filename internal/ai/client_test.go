package ai

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
)

// Test Provider constants
func TestProviderConstants(t *testing.T) {
	tests := []struct {
		provider Provider
		expected string
	}{
		{ProviderOpenAI, "openai"},
		{ProviderVertexAI, "vertexai"},
		{ProviderOllama, "ollama"},
		{ProviderStub, "stub"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if string(tt.provider) != tt.expected {
				t.Errorf("Provider constant mismatch. Expected: %s, Got: %s", tt.expected, string(tt.provider))
			}
		})
	}
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in       string
		expected Provider
		wantErr  bool
	}{
		{"openai", ProviderOpenAI, false},
		{"OpenAI", ProviderOpenAI, false},
		{"vertexai", ProviderVertexAI, false},
		{"google", ProviderVertexAI, false},
		{" ollama ", ProviderOllama, false},
		{"stub", ProviderStub, false},
		{"huggingface", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParseProvider(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %q, got provider %q", tt.in, p)
				} else if !strings.Contains(err.Error(), "unsupported provider") {
					t.Errorf("Unexpected error message: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if p != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, p)
			}
		})
	}
}

// Test NewClient function
func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		config      *ClientConfig
		expectError bool
		errorMsg    string
		clientType  string
	}{
		{
			name:        "nil config",
			config:      nil,
			expectError: true,
			errorMsg:    "client config is required",
		},
		{
			name: "openai provider",
			config: &ClientConfig{
				Provider: ProviderOpenAI,
				APIKey:   "test-key",
				Dim:      512,
			},
			clientType: "*ai.OpenAIClient",
		},
		{
			name: "vertexai provider",
			config: &ClientConfig{
				Provider: ProviderVertexAI,
				APIKey:   "test-key",
				Dim:      768,
			},
			clientType: "*ai.VertexAIClient",
		},
		{
			name: "ollama provider",
			config: &ClientConfig{
				Provider: ProviderOllama,
				BaseURL:  "http://127.0.0.1:11434",
			},
			clientType: "*ai.OllamaClient",
		},
		{
			name: "stub provider",
			config: &ClientConfig{
				Provider: ProviderStub,
				Dim:      256,
			},
			clientType: "*ai.StubClient",
		},
		{
			name: "unsupported provider",
			config: &ClientConfig{
				Provider: Provider("unsupported"),
				Dim:      512,
			},
			expectError: true,
			errorMsg:    "unsupported provider: unsupported",
		},
		{
			name: "empty provider",
			config: &ClientConfig{
				Provider: Provider(""),
				Dim:      512,
			},
			expectError: true,
			errorMsg:    "unsupported provider: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				if client != nil {
					t.Errorf("Expected nil client when error occurs, got %v", client)
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			clientTypeName := ""
			switch client.(type) {
			case *OpenAIClient:
				clientTypeName = "*ai.OpenAIClient"
			case *VertexAIClient:
				clientTypeName = "*ai.VertexAIClient"
			case *OllamaClient:
				clientTypeName = "*ai.OllamaClient"
			case *StubClient:
				clientTypeName = "*ai.StubClient"
			default:
				clientTypeName = "unknown"
			}
			if clientTypeName != tt.clientType {
				t.Errorf("Expected client type '%s', got '%s'", tt.clientType, clientTypeName)
			}
		})
	}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (norm(a) * norm(b))
}

// Test StubClient Embed method
func TestStubClient_Embed(t *testing.T) {
	tests := []struct {
		name     string
		dim      int
		text     string
		wantZero bool
		wantErr  bool
	}{
		{name: "regular text", dim: 64, text: "Data pipelines with Spark"},
		{name: "accents and punctuation", dim: 32, text: "Demande du client : modèle, données!"},
		{name: "punctuation only", dim: 16, text: " ?!, ", wantZero: true},
		{name: "empty text", dim: 16, text: "", wantZero: true},
		{name: "zero dimension", dim: 0, text: "anything", wantErr: true},
		{name: "negative dimension", dim: -4, text: "anything", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewStubClient(tt.dim)
			v, err := client.Embed(context.Background(), tt.text)

			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(v) != tt.dim {
				t.Fatalf("Expected %d components, got %d", tt.dim, len(v))
			}
			n := norm(v)
			if tt.wantZero {
				if n != 0 {
					t.Errorf("Expected zero vector, got norm %f", n)
				}
				return
			}
			if math.Abs(n-1) > 1e-6 {
				t.Errorf("Expected unit vector, got norm %f", n)
			}
		})
	}
}

func TestStubClient_EmbedIsDeterministicAndSemanticallyOrdered(t *testing.T) {
	client := NewStubClient(256)
	ctx := context.Background()

	a1, _ := client.Embed(ctx, "kubernetes cluster migration")
	a2, _ := client.Embed(ctx, "Kubernetes cluster migration")
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("Embedding differs at %d: %f vs %f", i, a1[i], a2[i])
		}
	}

	near, _ := client.Embed(ctx, "migration of a kubernetes cluster")
	far, _ := client.Embed(ctx, "watercolor painting lessons")
	if cosine(a1, near) <= cosine(a1, far) {
		t.Errorf("Expected overlapping text to score higher: near=%f far=%f", cosine(a1, near), cosine(a1, far))
	}
}

// Test that all clients implement the Client interface
func TestClientInterfaceCompliance(t *testing.T) {
	var _ Client = (*StubClient)(nil)
	var _ Client = (*OpenAIClient)(nil)
	var _ Client = (*VertexAIClient)(nil)
	var _ Client = (*OllamaClient)(nil)
}

func TestStubClientConcurrency(t *testing.T) {
	client := NewStubClient(128)
	want, _ := client.Embed(context.Background(), "concurrent embedding")

	const numGoroutines = 50
	var wg sync.WaitGroup
	errs := make(chan string, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := client.Embed(context.Background(), "concurrent embedding")
			if err != nil {
				errs <- err.Error()
				return
			}
			for j := range got {
				if got[j] != want[j] {
					errs <- "embedding mismatch"
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
