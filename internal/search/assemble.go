package search

import (
	"fmt"

	"github.com/seanblong/projectsearch/internal/rank"
	"github.com/seanblong/projectsearch/pkg/models"
)

// assemble joins ranked hits with chunk and project records. Both slices
// are non-nil so an empty result encodes as [] rather than null.
func (s *Service) assemble(res rank.Result) (models.SearchResponse, error) {
	resp := models.SearchResponse{
		Chunks:   make([]models.ScoredChunk, 0, len(res.Chunks)),
		Projects: make([]models.ScoredProject, 0, len(res.Projects)),
	}

	for _, h := range res.Chunks {
		e, ok := s.Store.Entry(h.Index)
		if !ok {
			return models.SearchResponse{}, fmt.Errorf("%w: no chunk at index %d", ErrInconsistent, h.Index)
		}
		resp.Chunks = append(resp.Chunks, models.ScoredChunk{
			ProjectID: e.Chunk.ProjectID,
			Score:     h.Score,
			Content:   e.Chunk.Content,
		})
	}

	for _, p := range res.Projects {
		pr, ok := s.Store.Project(p.ID)
		if !ok {
			return models.SearchResponse{}, fmt.Errorf("%w: unknown project %d", ErrInconsistent, p.ID)
		}
		resp.Projects = append(resp.Projects, models.ScoredProject{
			ID:          pr.ID,
			Score:       p.Score,
			Name:        pr.Name,
			Company:     pr.Company,
			Description: pr.Description,
		})
	}
	return resp, nil
}
