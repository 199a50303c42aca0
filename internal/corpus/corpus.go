// Package corpus holds the pre-embedded project corpus. A Store is built once
// by Load, validated eagerly, and is read-only afterwards so it can be shared
// by any number of concurrent searches without locking.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/projectsearch/pkg/models"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidCorpus is wrapped by every validation failure in Load.
var ErrInvalidCorpus = errors.New("invalid corpus")

// Paths locates the three corpus artifacts on disk.
type Paths struct {
	Projects   string
	Chunks     string
	Embeddings string
}

// Entry pairs a chunk with its embedding row so the two can never drift apart.
type Entry struct {
	Chunk  models.Chunk
	Vector []float32
	Norm   float64
}

// Store is the immutable in-memory corpus.
type Store struct {
	projects []models.Project
	byID     map[int]int
	entries  []Entry
	dim      int
}

// Load reads projects, chunks and the embedding matrix concurrently and
// validates them together.
func Load(ctx context.Context, p Paths) (*Store, error) {
	var (
		projects []models.Project
		chunks   []models.Chunk
		matrix   [][]float32
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		projects, err = readProjects(p.Projects)
		return err
	})
	g.Go(func() (err error) {
		chunks, err = ReadChunks(p.Chunks)
		return err
	})
	g.Go(func() (err error) {
		matrix, err = readMatrix(p.Embeddings)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s, err := New(projects, chunks, matrix)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("projects", len(s.projects)).
		Int("chunks", len(s.entries)).
		Int("dim", s.dim).
		Msg("corpus loaded")
	return s, nil
}

// New validates already-decoded artifacts and builds a Store. The slices are
// copied; callers may reuse them.
func New(projects []models.Project, chunks []models.Chunk, matrix [][]float32) (*Store, error) {
	if len(projects) == 0 {
		return nil, fmt.Errorf("%w: no projects", ErrInvalidCorpus)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", ErrInvalidCorpus)
	}
	if len(chunks) != len(matrix) {
		return nil, fmt.Errorf("%w: %d chunks but %d embedding rows", ErrInvalidCorpus, len(chunks), len(matrix))
	}

	s := &Store{
		projects: append([]models.Project(nil), projects...),
		byID:     make(map[int]int, len(projects)),
		entries:  make([]Entry, len(chunks)),
	}
	for i, pr := range s.projects {
		if _, dup := s.byID[pr.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate project id %d", ErrInvalidCorpus, pr.ID)
		}
		s.byID[pr.ID] = i
	}

	for i, ch := range chunks {
		if _, ok := s.byID[ch.ProjectID]; !ok {
			return nil, fmt.Errorf("%w: chunk %d references unknown project %d", ErrInvalidCorpus, i, ch.ProjectID)
		}
		row := matrix[i]
		if i == 0 {
			s.dim = len(row)
			if s.dim == 0 {
				return nil, fmt.Errorf("%w: embedding rows are empty", ErrInvalidCorpus)
			}
		}
		if len(row) != s.dim {
			return nil, fmt.Errorf("%w: embedding row %d has dimension %d, want %d", ErrInvalidCorpus, i, len(row), s.dim)
		}
		norm, err := l2(row)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding row %d: %v", ErrInvalidCorpus, i, err)
		}
		s.entries[i] = Entry{
			Chunk:  ch,
			Vector: append([]float32(nil), row...),
			Norm:   norm,
		}
	}
	return s, nil
}

// Len is the number of chunks.
func (s *Store) Len() int { return len(s.entries) }

// Dim is the embedding dimensionality shared by every row.
func (s *Store) Dim() int { return s.dim }

// Entry returns the i-th chunk and its vector.
func (s *Store) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(s.entries) {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Entries exposes every entry in corpus order. Callers must not modify it.
func (s *Store) Entries() []Entry { return s.entries }

// Project looks a project up by id.
func (s *Store) Project(id int) (models.Project, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.Project{}, false
	}
	return s.projects[i], true
}

func l2(v []float32) (float64, error) {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, errors.New("non-finite component")
		}
		sum += f * f
	}
	return math.Sqrt(sum), nil
}
