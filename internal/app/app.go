// Package app assembles the search service from configuration. It is shared
// by the HTTP and MCP entry points.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/internal/ai"
	"github.com/seanblong/projectsearch/internal/audit"
	"github.com/seanblong/projectsearch/internal/config"
	"github.com/seanblong/projectsearch/internal/corpus"
	"github.com/seanblong/projectsearch/internal/rank"
	"github.com/seanblong/projectsearch/internal/search"
)

type App struct {
	Service *search.Service
	Store   *corpus.Store
	Ledger  audit.Ledger
}

// SetupLogging installs a JSON logger on w as the global and default context
// logger.
func SetupLogging(level string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level '%s': %w", level, err)
	}
	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger, nil
}

// ClientConfig maps the provider settings onto an ai.ClientConfig.
func ClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	p, err := ai.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	return &ai.ClientConfig{
		APIKey:     cfg.APIKey,
		EmbedModel: cfg.EmbedModel,
		Dim:        cfg.Dim,
		ProjectID:  cfg.ProjectID,
		Location:   cfg.Location,
		BaseURL:    cfg.BaseURL,
		Provider:   p,
	}, nil
}

// New loads the corpus, builds the embedding client and opens the audit
// ledgers. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg config.Specification) (*App, error) {
	store, err := corpus.Load(ctx, corpus.Paths{
		Projects:   cfg.ProjectsFile,
		Chunks:     cfg.ChunksFile,
		Embeddings: cfg.EmbeddingsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}

	cc, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	// The stub embeds into whatever width the corpus has unless told otherwise.
	if cc.Provider == ai.ProviderStub && cc.Dim == 0 {
		cc.Dim = store.Dim()
	}
	client, err := ai.NewClient(cc)
	if err != nil {
		return nil, fmt.Errorf("create AI client: %w", err)
	}
	if err := search.CheckDimensions(client, store); err != nil {
		return nil, err
	}
	log.Info().
		Str("provider", string(cc.Provider)).
		Str("embed_model", cc.EmbedModel).
		Int("embedding_dim", store.Dim()).
		Msg("AI client initialized")
	if cc.Provider == ai.ProviderStub {
		log.Warn().Msg("stub provider embeds by hashing; scores against the corpus are not semantic")
	}

	ledger, err := openLedger(ctx, cfg, store.Dim())
	if err != nil {
		return nil, err
	}

	svc := search.NewService(client, store, ledger)
	svc.Options = rank.Options{TopK: cfg.TopK, Threshold: cfg.Threshold}
	svc.Prompt = cfg.QueryPrompt
	svc.MaxQueryLength = cfg.MaxQueryLength

	return &App{Service: svc, Store: store, Ledger: ledger}, nil
}

func openLedger(ctx context.Context, cfg config.Specification, dim int) (audit.Ledger, error) {
	csvLedger, err := audit.OpenCSV(cfg.AuditLog)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", csvLedger.Path()).Msg("audit log opened")
	if cfg.Database == "" {
		return csvLedger, nil
	}

	pg, err := audit.OpenPostgres(ctx, cfg.Database, dim)
	if err == nil {
		err = pg.Migrate(ctx)
		if err != nil {
			_ = pg.Close()
		}
	}
	if err != nil {
		_ = csvLedger.Close()
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	log.Info().Msg("audit mirrored to postgres")
	return audit.Multi{csvLedger, pg}, nil
}

// Ping reports whether the audit ledgers can still accept records.
func (a *App) Ping(ctx context.Context) error {
	if p, ok := a.Ledger.(audit.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (a *App) Close() error {
	if a.Ledger == nil {
		return nil
	}
	return a.Ledger.Close()
}
