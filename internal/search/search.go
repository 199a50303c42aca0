// Package search answers a free-text query with the closest corpus chunks
// and the projects they belong to.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/seanblong/projectsearch/internal/ai"
	"github.com/seanblong/projectsearch/internal/audit"
	"github.com/seanblong/projectsearch/internal/corpus"
	"github.com/seanblong/projectsearch/internal/rank"
	"github.com/seanblong/projectsearch/pkg/models"
)

const (
	// DefaultMaxQueryLength bounds a query, in runes.
	DefaultMaxQueryLength = 2000
	// DefaultAuditTimeout bounds a ledger append independently of the
	// request deadline.
	DefaultAuditTimeout = 3 * time.Second
)

var (
	ErrEmptyQuery        = errors.New("query is empty")
	ErrQueryTooLong      = errors.New("query is too long")
	ErrEmbedding         = errors.New("embedding failed")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInconsistent      = errors.New("corpus is inconsistent")
)

// IsInvalidQuery reports whether err was caused by the caller's input.
func IsInvalidQuery(err error) bool {
	return errors.Is(err, ErrEmptyQuery) || errors.Is(err, ErrQueryTooLong)
}

// Corpus is the read side of corpus.Store used by the service.
type Corpus interface {
	Len() int
	Dim() int
	Entry(i int) (corpus.Entry, bool)
	Entries() []corpus.Entry
	Project(id int) (models.Project, bool)
}

type Service struct {
	Client         ai.Client
	Store          Corpus
	Ledger         audit.Ledger
	Options        rank.Options
	Prompt         string
	MaxQueryLength int
	AuditTimeout   time.Duration
	Now            func() time.Time
}

// NewService creates a search service with default ranking options and
// prompt. ledger may be nil to disable auditing.
func NewService(client ai.Client, store Corpus, ledger audit.Ledger) *Service {
	return &Service{
		Client:         client,
		Store:          store,
		Ledger:         ledger,
		Options:        rank.DefaultOptions(),
		Prompt:         DefaultPrompt,
		MaxQueryLength: DefaultMaxQueryLength,
		AuditTimeout:   DefaultAuditTimeout,
		Now:            time.Now,
	}
}

// Query ranks the corpus against q and records the exchange in the ledger.
// address identifies the caller in the audit trail. Ledger failures are
// logged and never change the returned response.
func (s *Service) Query(ctx context.Context, q, address string) (models.SearchResponse, error) {
	logger := zerolog.Ctx(ctx)

	text, err := s.validate(q)
	if err != nil {
		return models.SearchResponse{}, err
	}

	scorer := Scorer{Client: s.Client, Prompt: s.Prompt}
	vec, err := scorer.Encode(ctx, text, s.Store.Dim())
	if err != nil {
		logger.Error().Err(err).Msg("query embedding failed")
		return models.SearchResponse{}, err
	}

	scores := scorer.Score(vec, s.Store.Entries())
	res := rank.Rank(scores, s.projectOf, s.Options)

	resp, err := s.assemble(res)
	if err != nil {
		logger.Error().Err(err).Msg("cannot assemble response")
		return models.SearchResponse{}, err
	}

	logger.Debug().
		Int("chunks", len(resp.Chunks)).
		Int("projects", len(resp.Projects)).
		Msg("query ranked")

	s.record(ctx, models.AuditRecord{
		Date:        s.now(),
		Address:     address,
		Query:       q,
		Response:    resp,
		QueryVector: vec,
	})
	return resp, nil
}

func (s *Service) validate(q string) (string, error) {
	text := strings.TrimSpace(q)
	if text == "" {
		return "", ErrEmptyQuery
	}
	limit := s.MaxQueryLength
	if limit <= 0 {
		limit = DefaultMaxQueryLength
	}
	if n := utf8.RuneCountInString(text); n > limit {
		return "", fmt.Errorf("%w: %d characters, limit is %d", ErrQueryTooLong, n, limit)
	}
	return text, nil
}

func (s *Service) record(ctx context.Context, rec models.AuditRecord) {
	if s.Ledger == nil {
		return
	}
	timeout := s.AuditTimeout
	if timeout <= 0 {
		timeout = DefaultAuditTimeout
	}
	// Detached from the caller so a disconnect still records the row.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.Ledger.Append(actx, rec); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("address", rec.Address).Msg("audit append failed")
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// projectOf resolves a chunk index to its project id, or -1 when the index
// is out of range so the assembler reports it.
func (s *Service) projectOf(i int) int {
	e, ok := s.Store.Entry(i)
	if !ok {
		return -1
	}
	return e.Chunk.ProjectID
}
