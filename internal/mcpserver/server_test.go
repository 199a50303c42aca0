package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/seanblong/projectsearch/internal/search"
	"github.com/seanblong/projectsearch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockSearcher struct {
	QueryFunc func(ctx context.Context, q, address string) (models.SearchResponse, error)
	Queries   []string
	Addresses []string
}

func (m *MockSearcher) Query(ctx context.Context, q, address string) (models.SearchResponse, error) {
	m.Queries = append(m.Queries, q)
	m.Addresses = append(m.Addresses, address)
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, q, address)
	}
	return models.SearchResponse{
		Chunks:   []models.ScoredChunk{{ProjectID: 3, Score: 0.71, Content: "dbt models"}},
		Projects: []models.ScoredProject{{ID: 3, Score: 0.71, Name: "Warehouse", Company: "Initech", Description: "Analytics"}},
	}, nil
}

func callRequest(args any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      "search_projects",
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content should be text, got %T", res.Content[0])
	return text.Text
}

func TestSearchProjectsTool(t *testing.T) {
	tool := searchProjectsTool()
	assert.Equal(t, "search_projects", tool.Name)
	assert.NotEmpty(t, tool.Description)
	assert.Equal(t, "object", tool.InputSchema.Type)
	assert.Equal(t, []string{"query"}, tool.InputSchema.Required)
	assert.Contains(t, tool.InputSchema.Properties, "query")
}

func TestHandleSearchProjects(t *testing.T) {
	svc := &MockSearcher{}
	s := New(svc)

	res, err := s.handleSearchProjects(context.Background(), callRequest(map[string]interface{}{
		"query": "analytics warehouse",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	var resp models.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &resp))
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, "Warehouse", resp.Projects[0].Name)

	assert.Equal(t, []string{"analytics warehouse"}, svc.Queries)
	assert.Equal(t, []string{Address}, svc.Addresses)
}

func TestHandleSearchProjects_ToolErrors(t *testing.T) {
	tests := []struct {
		name      string
		args      any
		queryFunc func(ctx context.Context, q, address string) (models.SearchResponse, error)
		wantText  string
		wantCalls int
	}{
		{
			name:     "arguments not an object",
			args:     "analytics",
			wantText: "invalid arguments",
		},
		{
			name:     "missing query",
			args:     map[string]interface{}{},
			wantText: "query parameter is required and must be a string",
		},
		{
			name:     "query not a string",
			args:     map[string]interface{}{"query": 12},
			wantText: "query parameter is required and must be a string",
		},
		{
			name: "empty query",
			args: map[string]interface{}{"query": " "},
			queryFunc: func(ctx context.Context, q, address string) (models.SearchResponse, error) {
				return models.SearchResponse{}, search.ErrEmptyQuery
			},
			wantText:  search.ErrEmptyQuery.Error(),
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockSearcher{QueryFunc: tt.queryFunc}
			s := New(svc)

			res, err := s.handleSearchProjects(context.Background(), callRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Equal(t, tt.wantText, resultText(t, res))
			assert.Len(t, svc.Queries, tt.wantCalls)
		})
	}
}

func TestHandleSearchProjects_InternalError(t *testing.T) {
	svc := &MockSearcher{
		QueryFunc: func(ctx context.Context, q, address string) (models.SearchResponse, error) {
			return models.SearchResponse{}, search.ErrInconsistent
		},
	}
	s := New(svc)

	res, err := s.handleSearchProjects(context.Background(), callRequest(map[string]interface{}{"query": "x"}))
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, search.ErrInconsistent))
}

func TestServer_ListsTool(t *testing.T) {
	s := New(&MockSearcher{})

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	out := s.mcp.HandleMessage(context.Background(), msg)

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"search_projects"`)
}
