package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/cov-loupe/pkg/datacache"
	"github.com/jupierce/cov-loupe/pkg/model"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

const ts = int64(1700000000)

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write := func(rel, body string, mtime int64) {
		abs := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
		require.NoError(t, os.WriteFile(abs, []byte(body), 0644))
		mt := time.Unix(mtime, 0)
		require.NoError(t, os.Chtimes(abs, mt, mt))
	}
	write("lib/a.rb", "a\nb\nc\n", ts-10)
	write("lib/b.rb", "a\n", ts+10)
	write("coverage/.resultset.json", fmt.Sprintf(`{"RSpec":{"timestamp":%d,"coverage":{
		%q:{"lines":[1,0,null]},
		%q:{"lines":[2]}
	}}}`, ts, filepath.Join(root, "lib/a.rb"), filepath.Join(root, "lib/b.rb")), ts)
	return root
}

func newHandlers(root string) *handlers {
	return &handlers{
		factory: &Factory{
			Defaults: model.Config{Root: root, Normalizer: paths.NewNormalizer(paths.StaticCase(true))},
			Cache:    datacache.New(datacache.WithCaseDetector(paths.StaticCase(true))),
		},
		version: "1.2.3",
	}
}

func call(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := fn(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res, res.Content[0].(mcp.TextContent).Text
}

func TestSummaryTool(t *testing.T) {
	h := newHandlers(setupProject(t))
	res, text := call(t, h.fileTool(h.summary), map[string]any{"path": "lib/a.rb"})
	require.False(t, res.IsError, text)

	var out model.FileSummary
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Equal(t, "lib/a.rb", out.File)
	assert.Equal(t, 50.0, out.Summary.Percentage)
	assert.Equal(t, "ok", string(out.Stale))
}

func TestFileToolsReportStaleness(t *testing.T) {
	h := newHandlers(setupProject(t))

	_, text := call(t, h.fileTool(h.raw), map[string]any{"path": "lib/b.rb"})
	assert.Contains(t, text, `"stale": "newer"`)

	res, text := call(t, h.fileTool(h.raw), map[string]any{"path": "lib/b.rb", "raise_on_stale": true})
	assert.True(t, res.IsError)
	assert.Contains(t, text, fmt.Sprint(ts+10))

	res, text = call(t, h.fileTool(h.uncovered), map[string]any{"path": "lib/a.rb"})
	require.False(t, res.IsError, text)
	assert.Contains(t, text, `"uncovered": [`)

	res, text = call(t, h.fileTool(h.detailed), map[string]any{"path": "a.rb"})
	require.False(t, res.IsError, text)
	assert.Contains(t, text, `"hits": 1`)

	res, text = call(t, h.fileTool(h.summary), map[string]any{})
	assert.True(t, res.IsError)
	assert.Equal(t, "path is required", text)

	res, _ = call(t, h.fileTool(h.summary), map[string]any{"path": "nothing.rb"})
	assert.True(t, res.IsError)
}

func TestListTool(t *testing.T) {
	h := newHandlers(setupProject(t))
	res, text := call(t, h.list, map[string]any{"sort_order": "ascending"})
	require.False(t, res.IsError, text)

	var out model.ListResult
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Len(t, out.Files, 2)
	assert.Equal(t, "lib/a.rb", out.Files[0].File)
	assert.Equal(t, []string{"lib/b.rb"}, out.NewerFiles)

	_, text = call(t, h.list, map[string]any{"tracked_globs": []any{"lib/a.rb"}})
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	assert.Len(t, out.Files, 1)

	res, _ = call(t, h.list, map[string]any{"raise_on_stale": true})
	assert.True(t, res.IsError)

	res, _ = call(t, h.list, map[string]any{"sort_order": "sideways"})
	assert.True(t, res.IsError)
}

func TestTotalsAndVersionTools(t *testing.T) {
	h := newHandlers(setupProject(t))
	res, text := call(t, h.totals, map[string]any{})
	require.False(t, res.IsError, text)
	var totals model.Totals
	require.NoError(t, json.Unmarshal([]byte(text), &totals))
	assert.Equal(t, 3, totals.Lines.Total)
	assert.Equal(t, 1, totals.ExcludedFiles.Newer)

	_, text = call(t, h.versionTool, map[string]any{})
	assert.JSONEq(t, `{"version":"1.2.3"}`, text)
}

func TestFactoryOverrides(t *testing.T) {
	root := setupProject(t)
	h := newHandlers(t.TempDir())
	res, _ := call(t, h.list, map[string]any{})
	assert.True(t, res.IsError, "default root has no resultset")

	res, text := call(t, h.list, map[string]any{"root": root})
	require.False(t, res.IsError, text)

	res, _ = call(t, h.list, map[string]any{"root": root, "resultset": "missing.json"})
	assert.True(t, res.IsError)
}

func TestNewRegistersTools(t *testing.T) {
	s := New(newHandlers(t.TempDir()).factory, "dev")
	require.NotNil(t, s)
}

func TestTrackedGlobsSchemaListsStrings(t *testing.T) {
	tool := mcp.NewTool("list_tool", globsArg())
	prop, ok := tool.InputSchema.Properties["tracked_globs"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "array", prop["type"])
	assert.Equal(t, map[string]any{"type": "string"}, prop["items"])
}
