package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/spotter/internal/apperr"
	"github.com/starford/spotter/internal/engine"
	"github.com/starford/spotter/internal/models"
)

type fakeEngine struct {
	results   []engine.Result
	aliases   []models.Alias
	rescans   int
	rescanErr error
}

func (f *fakeEngine) Search(text string) []engine.Result {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return f.results
}

func (f *fakeEngine) Status() engine.Status {
	return engine.Status{State: "ready", Items: len(f.results)}
}

func (f *fakeEngine) Rescan(context.Context) error {
	f.rescans++
	return f.rescanErr
}

func (f *fakeEngine) Aliases() []models.Alias { return f.aliases }

func testServer(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{
		results: []engine.Result{
			{Name: "Visual Studio Code", Path: "/Applications/Visual Studio Code.app", Kind: models.KindApp},
			{Name: "vsc-notes.md", Path: "/docs/vsc-notes.md", Kind: models.KindFile, Icon: "ext:md"},
			{Name: "vscode", Path: "/docs/vscode", Kind: models.KindDirectory, Icon: "folder"},
		},
		aliases: []models.Alias{
			{Alias: "gh", Target: "https://github.com", DisplayName: "GitHub", External: true},
			{Alias: "notes", Target: "/docs/notes"},
		},
	}
	return New(eng, "test"), eng
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_index":
		result, err = srv.searchIndex(ctx, req)
	case "index_status":
		result, err = srv.indexStatus(ctx, req)
	case "rescan_index":
		result, err = srv.rescanIndex(ctx, req)
	case "list_aliases":
		result, err = srv.listAliases(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSearchIndex(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_index", map[string]interface{}{"query": "vsc"})
	if r.IsError {
		t.Fatalf("search error: %s", resultText(r))
	}
	var got []engine.Result
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 3 || got[0].Kind != models.KindApp {
		t.Errorf("results = %+v", got)
	}
}

func TestSearchIndexLimit(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "search_index", map[string]interface{}{"query": "vsc", "limit": float64(1)})
	var got []engine.Result
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Visual Studio Code" {
		t.Errorf("limited results = %+v", got)
	}
}

func TestSearchIndexRequiresQuery(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "search_index", map[string]interface{}{}); !r.IsError {
		t.Error("expected error for missing query")
	}
	if r := callTool(t, srv, "search_index", map[string]interface{}{"query": "  "}); !r.IsError {
		t.Error("expected error for blank query")
	}
}

func TestSearchIndexNoResults(t *testing.T) {
	srv, eng := testServer(t)
	eng.results = nil

	r := callTool(t, srv, "search_index", map[string]interface{}{"query": "zzz"})
	if text := resultText(r); text != "no results" {
		t.Errorf("text = %q", text)
	}
}

func TestIndexStatus(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "index_status", nil)
	var st engine.Status
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.State != "ready" || st.Items != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestRescanIndex(t *testing.T) {
	srv, eng := testServer(t)

	r := callTool(t, srv, "rescan_index", nil)
	if r.IsError || eng.rescans != 1 {
		t.Fatalf("rescan: %q, rescans = %d", resultText(r), eng.rescans)
	}

	eng.rescanErr = apperr.ErrStopped
	r = callTool(t, srv, "rescan_index", nil)
	if !r.IsError || !strings.Contains(resultText(r), apperr.ErrStopped.Error()) {
		t.Errorf("stopped rescan = %q", resultText(r))
	}
}

func TestListAliases(t *testing.T) {
	srv, eng := testServer(t)

	r := callTool(t, srv, "list_aliases", nil)
	want := "gh -> https://github.com (GitHub)\nnotes -> /docs/notes"
	if text := resultText(r); text != want {
		t.Errorf("aliases = %q, want %q", text, want)
	}

	eng.aliases = nil
	r = callTool(t, srv, "list_aliases", nil)
	if text := resultText(r); text != "no aliases defined" {
		t.Errorf("empty aliases = %q", text)
	}
}
