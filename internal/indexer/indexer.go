// Package indexer builds the chunk embedding matrix with the configured
// provider, so the corpus and the query encoder always share a model.
package indexer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/internal/ai"
	"github.com/seanblong/projectsearch/pkg/models"
	"golang.org/x/sync/errgroup"
)

// MaxWorkers caps concurrent embedding calls to avoid overwhelming the AI API.
const MaxWorkers = 8

// Indexer embeds chunk content into matrix rows.
type Indexer struct {
	Client  ai.Client
	Prompt  string
	Workers int
}

// New creates an Indexer with one worker per CPU, capped at MaxWorkers.
func New(client ai.Client) *Indexer {
	n := runtime.NumCPU()
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return &Indexer{Client: client, Workers: n}
}

// Embed returns one row per chunk, in chunk order. It stops at the first
// failure and requires every row to have the same width.
func (ix *Indexer) Embed(ctx context.Context, chunks []models.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to embed")
	}
	workers := ix.Workers
	if workers <= 0 {
		workers = 1
	}
	log.Info().Int("workers", workers).Int("chunks", len(chunks)).Msg("starting concurrent embedding")

	rows := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ch := range chunks {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := ix.Client.Embed(gctx, ix.Prompt+ch.Content)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			rows[i] = v
			log.Debug().Int("chunk", i).Int("project_id", ch.ProjectID).Msg("chunk embedded")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("provider returned empty embeddings")
	}
	for i, r := range rows {
		if len(r) != dim {
			return nil, fmt.Errorf("chunk %d embedded with dimension %d, want %d", i, len(r), dim)
		}
	}
	log.Info().Int("rows", len(rows)).Int("dim", dim).Msg("embedding complete")
	return rows, nil
}
