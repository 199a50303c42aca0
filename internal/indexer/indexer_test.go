package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/seanblong/projectsearch/internal/ai"
	"github.com/seanblong/projectsearch/internal/corpus"
	"github.com/seanblong/projectsearch/pkg/models"
)

// MockAIClient implements the ai.Client interface for testing
type MockAIClient struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	DimFunc   func() int
	calls     atomic.Int32
}

func (m *MockAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls.Add(1)
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{float32(len(text)), 1}, nil
}

func (m *MockAIClient) Dim() int {
	if m.DimFunc != nil {
		return m.DimFunc()
	}
	return 2
}

func testChunks(n int) []models.Chunk {
	out := make([]models.Chunk, n)
	for i := range out {
		out[i] = models.Chunk{ProjectID: i % 2, Content: strings.Repeat("x", i+1)}
	}
	return out
}

func TestNew(t *testing.T) {
	client := &MockAIClient{}
	ix := New(client)
	if ix.Client != client {
		t.Error("client not stored")
	}
	if ix.Workers < 1 || ix.Workers > MaxWorkers {
		t.Errorf("Workers = %d, want 1..%d", ix.Workers, MaxWorkers)
	}
}

func TestIndexer_EmbedKeepsOrder(t *testing.T) {
	client := &MockAIClient{}
	ix := &Indexer{Client: client, Workers: 4}

	chunks := testChunks(50)
	rows, err := ix.Embed(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(rows) != len(chunks) {
		t.Fatalf("got %d rows, want %d", len(rows), len(chunks))
	}
	for i, r := range rows {
		if want := []float32{float32(i + 1), 1}; !reflect.DeepEqual(r, want) {
			t.Errorf("row %d = %v, want %v", i, r, want)
		}
	}
	if got := client.calls.Load(); got != 50 {
		t.Errorf("Embed called %d times, want 50", got)
	}
}

func TestIndexer_EmbedPrompt(t *testing.T) {
	var seen atomic.Value
	client := &MockAIClient{
		EmbedFunc: func(ctx context.Context, text string) ([]float32, error) {
			seen.Store(text)
			return []float32{1}, nil
		},
	}
	ix := &Indexer{Client: client, Prompt: "passage: ", Workers: 1}

	if _, err := ix.Embed(context.Background(), []models.Chunk{{Content: "kafka"}}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if got := seen.Load(); got != "passage: kafka" {
		t.Errorf("embedded %q, want %q", got, "passage: kafka")
	}
}

func TestIndexer_EmbedErrors(t *testing.T) {
	errProvider := errors.New("quota exceeded")

	tests := []struct {
		name      string
		chunks    []models.Chunk
		embedFunc func(ctx context.Context, text string) ([]float32, error)
		wantErr   error
		wantText  string
	}{
		{
			name:     "no chunks",
			chunks:   nil,
			wantText: "no chunks",
		},
		{
			name:   "provider failure",
			chunks: testChunks(10),
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				if len(text) == 5 {
					return nil, errProvider
				}
				return []float32{1, 2}, nil
			},
			wantErr:  errProvider,
			wantText: "embed chunk 4",
		},
		{
			name:   "ragged rows",
			chunks: testChunks(3),
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				return make([]float32, len(text)), nil
			},
			wantText: "dimension",
		},
		{
			name:   "empty rows",
			chunks: testChunks(2),
			embedFunc: func(ctx context.Context, text string) ([]float32, error) {
				return []float32{}, nil
			},
			wantText: "empty embeddings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := &Indexer{Client: &MockAIClient{EmbedFunc: tt.embedFunc}, Workers: 3}
			rows, err := ix.Embed(context.Background(), tt.chunks)
			if err == nil {
				t.Fatalf("Embed() expected error, got %d rows", len(rows))
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error %q does not mention %q", err, tt.wantText)
			}
		})
	}
}

func TestIndexer_EmbedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := &Indexer{Client: &MockAIClient{}, Workers: 2}
	if _, err := ix.Embed(ctx, testChunks(5)); !errors.Is(err, context.Canceled) {
		t.Errorf("Embed() error = %v, want context.Canceled", err)
	}
}

func writeCorpusFiles(t *testing.T, dir string, n int) corpus.Paths {
	t.Helper()
	var projects, chunks []string
	projects = append(projects, `{"id": 0, "name": "A", "company": "C", "full_desc": "d"}`,
		`{"id": 1, "name": "B", "company": "C", "full_desc": "d"}`)
	for i := 0; i < n; i++ {
		chunks = append(chunks, fmt.Sprintf(`{"project_id": %d, "content": "chunk %d"}`, i%2, i))
	}
	p := corpus.Paths{
		Projects: filepath.Join(dir, "projects.json"),
		Chunks:   filepath.Join(dir, "chunks.json"),
	}
	if err := os.WriteFile(p.Projects, []byte("["+strings.Join(projects, ",")+"]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.Chunks, []byte("["+strings.Join(chunks, ",")+"]"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWriteMatrix_LoadsBack(t *testing.T) {
	rows := [][]float32{
		{0.25, -1.5, 3},
		{1, 0, 0},
		{0, 0.5, 0.125},
	}

	for _, ext := range []string{".npy", ".json"} {
		t.Run(ext, func(t *testing.T) {
			dir := t.TempDir()
			p := writeCorpusFiles(t, dir, len(rows))
			p.Embeddings = filepath.Join(dir, "out", "embedded_chunks"+ext)

			if err := WriteMatrix(p.Embeddings, rows); err != nil {
				t.Fatalf("WriteMatrix() error = %v", err)
			}

			store, err := corpus.Load(context.Background(), p)
			if err != nil {
				t.Fatalf("corpus.Load() error = %v", err)
			}
			if store.Len() != 3 || store.Dim() != 3 {
				t.Fatalf("store is %dx%d, want 3x3", store.Len(), store.Dim())
			}
			for i, want := range rows {
				e, _ := store.Entry(i)
				if !reflect.DeepEqual(e.Vector, want) {
					t.Errorf("row %d = %v, want %v", i, e.Vector, want)
				}
			}

			left, _ := filepath.Glob(filepath.Join(dir, "out", ".embeddings-*"))
			if len(left) != 0 {
				t.Errorf("temporary files left behind: %v", left)
			}
		})
	}
}

func TestWriteMatrix_NPYHeaderAligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.npy")
	if err := WriteMatrix(path, [][]float32{{1, 2}}); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b[:6]) != "\x93NUMPY" {
		t.Fatalf("bad magic %q", b[:6])
	}
	hlen := int(b[8]) | int(b[9])<<8
	if (10+hlen)%64 != 0 {
		t.Errorf("data offset %d is not 64-byte aligned", 10+hlen)
	}
	if len(b) != 10+hlen+8 {
		t.Errorf("file is %d bytes, want %d", len(b), 10+hlen+8)
	}
}

func TestWriteMatrix_Errors(t *testing.T) {
	dir := t.TempDir()

	if err := WriteMatrix(filepath.Join(dir, "m.csv"), [][]float32{{1}}); err == nil {
		t.Error("expected error for unsupported extension")
	}

	path := filepath.Join(dir, "ragged.npy")
	if err := WriteMatrix(path, [][]float32{{1, 2}, {3}}); err == nil {
		t.Error("expected error for ragged rows")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("failed write left %s behind", path)
	}
}

func TestIndexer_WithStubClient(t *testing.T) {
	ix := New(ai.NewStubClient(16))
	rows, err := ix.Embed(context.Background(), testChunks(4))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for i, r := range rows {
		if len(r) != 16 {
			t.Errorf("row %d has dimension %d, want 16", i, len(r))
		}
	}
}
