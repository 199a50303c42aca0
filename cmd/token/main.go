// Command token prints a signed bearer token for the search API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/internal/auth"
	"github.com/seanblong/projectsearch/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("projectsearch-token", pflag.ExitOnError)
	subject := fs.String("subject", "", "Token subject (required)")
	name := fs.String("name", "", "Display name carried in the token")
	ttl := fs.Duration("ttl", auth.DefaultTTL, "Token lifetime")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	if cfg.Auth.JwtSecret == "" {
		log.Fatal().Msg("a JWT secret is required (PROJECTSEARCH_AUTH_JWT_SECRET or --auth-jwt-secret)")
	}
	auth.InitializeAuth(cfg.Auth.JwtSecret, true)
	if *ttl <= 0 {
		*ttl = auth.DefaultTTL
	}

	token, err := auth.GenerateJWT(*subject, *name, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to generate token")
	}
	fmt.Fprintln(os.Stdout, token)
	log.Info().Str("sub", *subject).Time("expires", time.Now().Add(*ttl)).Msg("token issued")
}
