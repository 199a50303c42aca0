package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/internal/app"
	"github.com/seanblong/projectsearch/internal/config"
	"github.com/seanblong/projectsearch/internal/mcpserver"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("projectsearch-mcp", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	// stdout carries the protocol.
	logger, err := app.SetupLogging(cfg.LogLevel, os.Stderr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	logger.Info().Str("server", mcpserver.ServerName).Msg("serving MCP on stdio")
	err = mcpserver.New(a.Service).Serve()
	if cerr := a.Close(); cerr != nil {
		logger.Error().Err(cerr).Msg("failed to close audit ledger")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("mcp server stopped")
	}
}
