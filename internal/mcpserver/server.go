// Package mcpserver exposes project search as an MCP tool over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/seanblong/projectsearch/internal/search"
	"github.com/seanblong/projectsearch/pkg/models"
)

const (
	ServerName    = "projectsearch"
	ServerVersion = "0.1.0"

	// Address is recorded in the audit ledger for tool calls.
	Address = "mcp:stdio"
)

// Searcher is implemented by *search.Service.
type Searcher interface {
	Query(ctx context.Context, q, address string) (models.SearchResponse, error)
}

type Server struct {
	mcp *server.MCPServer
	svc Searcher
}

func New(svc Searcher) *Server {
	s := &Server{
		mcp: server.NewMCPServer(ServerName, ServerVersion),
		svc: svc,
	}
	s.mcp.AddTool(searchProjectsTool(), s.handleSearchProjects)
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func searchProjectsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_projects",
		Description: "Find the portfolio projects most relevant to a client request. Returns the matching excerpts and the projects ranked by mean similarity.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text description of what the client needs",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (s *Server) handleSearchProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("invalid arguments"), nil
	}
	query, ok := args["query"].(string)
	if !ok {
		return mcp.NewToolResultError("query parameter is required and must be a string"), nil
	}

	resp, err := s.svc.Query(ctx, query, Address)
	if err != nil {
		if search.IsInvalidQuery(err) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		zerolog.Ctx(ctx).Error().Err(err).Msg("search_projects failed")
		return nil, fmt.Errorf("search failed: %w", err)
	}

	b, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
