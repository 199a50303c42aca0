package models

import "time"

// Project is a portfolio entry that chunks point back to.
type Project struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	Description string `json:"description"`
}

// Chunk is an independently embedded excerpt of a project's text.
type Chunk struct {
	ProjectID int    `json:"project_id"`
	Content   string `json:"content"`
}

type ScoredChunk struct {
	ProjectID int     `json:"project_id"`
	Score     float64 `json:"score"`
	Content   string  `json:"content"`
}

type ScoredProject struct {
	ID          int     `json:"id"`
	Score       float64 `json:"score"`
	Name        string  `json:"name"`
	Company     string  `json:"company"`
	Description string  `json:"description"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type SearchResponse struct {
	Chunks   []ScoredChunk   `json:"chunks"`
	Projects []ScoredProject `json:"projects"`
}

// AuditRecord is one served request as written to the ledger.
// QueryVector is not part of the CSV row; sinks that can store vectors use it.
type AuditRecord struct {
	Date        time.Time
	Address     string
	Query       string
	Response    SearchResponse
	QueryVector []float32
}
