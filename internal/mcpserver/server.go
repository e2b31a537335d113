// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the launcher index as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/spotter/internal/engine"
	"github.com/starford/spotter/internal/models"
)

const defaultLimit = 20

// Engine is the subset of the engine coordinator the tools call.
type Engine interface {
	Search(text string) []engine.Result
	Status() engine.Status
	Rescan(ctx context.Context) error
	Aliases() []models.Alias
}

// Server wraps the MCP server with index tools.
type Server struct {
	mcp    *server.MCPServer
	engine Engine
}

// New creates a new MCP server with all index tools registered.
func New(eng Engine, version string) *Server {
	s := &Server{engine: eng}

	s.mcp = server.NewMCPServer(
		"Spotter",
		version,
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("search_index",
		mcp.WithDescription("Search indexed applications, folders and files by name. "+
			"Matches exact names, prefixes, substrings, word acronyms and pinyin for Chinese names. "+
			"Results are ordered aliases first, then applications, folders and files."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text, e.g. \"vsc\" or \"annual report\"")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchIndex)

	s.mcp.AddTool(mcp.NewTool("index_status",
		mcp.WithDescription("Report the index state, item counts per partition and the last scan summary."),
	), s.indexStatus)

	s.mcp.AddTool(mcp.NewTool("rescan_index",
		mcp.WithDescription("Discard the persisted records and scan every configured scope again. "+
			"Returns immediately; poll index_status until the state is ready."),
	), s.rescanIndex)

	s.mcp.AddTool(mcp.NewTool("list_aliases",
		mcp.WithDescription("List the user-defined aliases and their targets."),
	), s.listAliases)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query must not be empty"), nil
	}
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	results := s.engine.Search(query)
	if len(results) == 0 {
		return mcp.NewToolResultText("no results"), nil
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return jsonResult(results)
}

func (s *Server) indexStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Status())
}

func (s *Server) rescanIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.engine.Rescan(ctx); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("rescan: %v", err)), nil
	}
	return mcp.NewToolResultText("rescan started"), nil
}

func (s *Server) listAliases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	aliases := s.engine.Aliases()
	if len(aliases) == 0 {
		return mcp.NewToolResultText("no aliases defined"), nil
	}
	lines := make([]string, 0, len(aliases))
	for _, a := range aliases {
		line := a.Alias + " -> " + a.Target
		if a.DisplayName != "" {
			line += " (" + a.DisplayName + ")"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
