package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/internal/api"
	"github.com/seanblong/projectsearch/internal/app"
	"github.com/seanblong/projectsearch/internal/auth"
	"github.com/seanblong/projectsearch/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("projectsearch-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	logger, err := app.SetupLogging(cfg.LogLevel, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up logging")
	}
	logger.Info().
		Str("provider", cfg.Provider).
		Str("log_level", cfg.LogLevel).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting projectsearch api")

	auth.InitializeAuth(cfg.Auth.JwtSecret, cfg.Auth.Enabled)
	if auth.IsAuthEnabled() {
		logger.Info().Msg("authentication is enabled")
	} else {
		logger.Info().Msg("authentication is disabled, running in open mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close audit ledger")
		}
	}()

	handler, err := api.NewHandler(a.Service, logger, api.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		TrustedProxies: cfg.TrustedProxies,
		Health:         a.Ping,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http handler")
	}

	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", s.Addr).Msg("api server listening")
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api server failed")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
