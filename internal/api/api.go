// Package api exposes the search service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/seanblong/projectsearch/internal/auth"
	"github.com/seanblong/projectsearch/internal/search"
	"github.com/seanblong/projectsearch/pkg/models"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 64 << 10
)

// Searcher is implemented by *search.Service.
type Searcher interface {
	Query(ctx context.Context, q, address string) (models.SearchResponse, error)
}

type Options struct {
	AllowedOrigins []string
	TrustedProxies []string
	Timeout        time.Duration
	MaxBodyBytes   int64
	// Health reports the readiness of backing stores for /healthz. Nil
	// means always ready.
	Health func(ctx context.Context) error
}

type server struct {
	svc     Searcher
	clients *clientResolver
	opt     Options
}

// NewHandler builds the HTTP surface: /search (GET and POST), /health and
// /healthz, wrapped with CORS, request ids and access logging.
func NewHandler(svc Searcher, logger zerolog.Logger, opt Options) (http.Handler, error) {
	if opt.Timeout <= 0 {
		opt.Timeout = DefaultTimeout
	}
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = DefaultMaxBodyBytes
	}
	clients, err := newClientResolver(opt.TrustedProxies)
	if err != nil {
		return nil, err
	}
	s := &server{svc: svc, clients: clients, opt: opt}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /search", auth.OptionalAuthMiddleware(s.search))
	mux.HandleFunc("POST /search", auth.OptionalAuthMiddleware(s.search))

	c := cors.New(cors.Options{
		AllowedOrigins:   opt.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	h := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("dur", dur).
				Msg("http")
		})(
			hlog.RequestIDHandler("req_id", "X-Request-Id")(mux),
		),
	)
	return c.Handler(h), nil
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"running": true})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.opt.Health != nil {
		if err := s.opt.Health(r.Context()); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *server) search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var q string
	if r.Method == http.MethodPost {
		var req models.SearchRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opt.MaxBodyBytes)).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		q = req.Query
	} else {
		q = r.URL.Query().Get("q")
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opt.Timeout)
	defer cancel()

	addr := s.clients.clientAddr(r)
	resp, err := s.svc.Query(ctx, q, addr)
	if err != nil {
		if search.IsInvalidQuery(err) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		hlog.FromRequest(r).Error().Err(err).Msg("search failed")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, r, http.StatusOK, resp)

	ev := hlog.FromRequest(r).Info().
		Str("path", "/search").
		Str("client", addr).
		Int("chunks", len(resp.Chunks)).
		Int("projects", len(resp.Projects)).
		Dur("dur", time.Since(start))
	if p := auth.GetPrincipalFromContext(r); p != nil {
		ev = ev.Str("sub", p.Subject)
	}
	ev.Msg("served")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeJSON(w, r, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to encode response")
	}
}
