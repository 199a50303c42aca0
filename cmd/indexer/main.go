package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/internal/ai"
	"github.com/seanblong/projectsearch/internal/app"
	"github.com/seanblong/projectsearch/internal/config"
	"github.com/seanblong/projectsearch/internal/corpus"
	"github.com/seanblong/projectsearch/internal/indexer"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("projectsearch-indexer", pflag.ExitOnError)
	out := fs.String("out", "", "Output matrix (.npy or .json); defaults to the configured embeddings file")
	prompt := fs.String("passage-prompt", "", "Text prepended to every chunk before embedding")
	workers := fs.Int("workers", 0, "Concurrent embedding calls (0 = one per CPU, at most 8)")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	logger, err := app.SetupLogging(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	target := *out
	if target == "" {
		target = cfg.EmbeddingsFile
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunks, err := corpus.ReadChunks(cfg.ChunksFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read chunks")
	}

	cc, err := app.ClientConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid provider")
	}
	client, err := ai.NewClient(cc)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create AI client")
	}
	logger.Info().Str("provider", string(cc.Provider)).Str("embed_model", cc.EmbedModel).Msg("AI client initialized")

	ix := indexer.New(client)
	ix.Prompt = *prompt
	if *workers > 0 {
		ix.Workers = *workers
	}

	rows, err := ix.Embed(ctx, chunks)
	if err != nil {
		logger.Fatal().Err(err).Msg("embedding failed")
	}
	if err := indexer.WriteMatrix(target, rows); err != nil {
		logger.Fatal().Err(err).Msg("failed to write embeddings")
	}

	// The three artifacts must load together before the API can use them.
	if _, err := corpus.Load(ctx, corpus.Paths{
		Projects:   cfg.ProjectsFile,
		Chunks:     cfg.ChunksFile,
		Embeddings: target,
	}); err != nil {
		logger.Fatal().Err(err).Msg("written corpus does not validate")
	}
	logger.Info().Str("path", target).Int("rows", len(rows)).Int("dim", len(rows[0])).Msg("embeddings written")
}
