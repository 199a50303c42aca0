package search

import (
	"context"
	"fmt"
	"math"

	"github.com/seanblong/projectsearch/internal/ai"
	"github.com/seanblong/projectsearch/internal/corpus"
)

// DefaultPrompt is prepended to every query before it is embedded, matching
// the prompt the corpus chunks were encoded against.
const DefaultPrompt = "Demande du client : "

// Scorer embeds queries and compares them with corpus vectors.
type Scorer struct {
	Client ai.Client
	Prompt string
}

// Encode embeds prompt+query and checks the result has dimension dim.
func (s Scorer) Encode(ctx context.Context, query string, dim int) ([]float32, error) {
	vec, err := s.Client.Embed(ctx, s.Prompt+query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: query has %d, corpus has %d", ErrDimensionMismatch, len(vec), dim)
	}
	return vec, nil
}

// Score returns the cosine similarity of vec with every entry, in entry
// order. Results are clamped to [-1, 1]; a zero vector on either side
// scores 0.
func (s Scorer) Score(vec []float32, entries []corpus.Entry) []float64 {
	qn := norm(vec)
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = cosine(vec, qn, e.Vector, e.Norm)
	}
	return out
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	c := dot / (an * bn)
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return c
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// CheckDimensions fails when the client advertises a dimension that the
// corpus was not built with. Clients reporting 0 are checked per query.
func CheckDimensions(client ai.Client, store Corpus) error {
	if d := client.Dim(); d != 0 && d != store.Dim() {
		return fmt.Errorf("%w: client embeds %d, corpus has %d", ErrDimensionMismatch, d, store.Dim())
	}
	return nil
}
