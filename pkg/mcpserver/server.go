// Package mcpserver exposes the coverage model as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jupierce/cov-loupe/pkg/datacache"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// Factory builds models for tool calls. All models share one cache, so
// repeated calls against the same resultset parse it once.
type Factory struct {
	Defaults model.Config
	Cache    *datacache.Cache
}

// Model returns a model for the given overrides; empty values keep the
// defaults.
func (f *Factory) Model(root, resultset string) (*model.Model, error) {
	cfg := f.Defaults
	if root != "" {
		cfg.Root = root
		if resultset == "" {
			cfg.Resultset = ""
		}
	}
	if resultset != "" {
		cfg.Resultset = resultset
	}
	return model.New(cfg, f.Cache)
}

// New registers every tool on a fresh server.
func New(f *Factory, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"cov-loupe",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	h := &handlers{factory: f, version: version}

	fileTools := []struct {
		name, description string
		handle            func(*model.Model, string, []model.QueryOption) (interface{}, error)
	}{
		{"coverage_summary_tool", "Covered, total and percentage for one file.", h.summary},
		{"coverage_raw_tool", "Per-line hit counts for one file; null marks non-executable lines.", h.raw},
		{"uncovered_lines_tool", "Executable lines of one file that were never hit.", h.uncovered},
		{"coverage_detailed_tool", "One entry per executable line of one file with its hit count.", h.detailed},
	}
	for _, t := range fileTools {
		s.AddTool(mcp.NewTool(t.name,
			mcp.WithDescription(t.description),
			mcp.WithString("path", mcp.Required(), mcp.Description("File path, absolute or relative to the root")),
			rootArg(), resultsetArg(), raiseArg(),
		), h.fileTool(t.handle))
	}

	s.AddTool(mcp.NewTool("list_tool",
		mcp.WithDescription("Coverage for every file in the resultset, with staleness per file."),
		rootArg(), resultsetArg(), raiseArg(), globsArg(),
		mcp.WithString("sort_order", mcp.Description("ascending or descending by percentage"), mcp.Enum("ascending", "descending")),
	), h.list)

	s.AddTool(mcp.NewTool("coverage_totals_tool",
		mcp.WithDescription("Aggregated line and file totals for the project."),
		rootArg(), resultsetArg(), raiseArg(), globsArg(),
	), h.totals)

	s.AddTool(mcp.NewTool("version_tool",
		mcp.WithDescription("Version of the coverage server."),
	), h.versionTool)

	return s
}

func rootArg() mcp.ToolOption {
	return mcp.WithString("root", mcp.Description("Project root; defaults to the server's root"))
}

func resultsetArg() mcp.ToolOption {
	return mcp.WithString("resultset", mcp.Description("Resultset file or directory"))
}

func raiseArg() mcp.ToolOption {
	return mcp.WithBoolean("raise_on_stale", mcp.Description("Fail instead of reporting stale coverage"))
}

func globsArg() mcp.ToolOption {
	return mcp.WithArray("tracked_globs", mcp.Description("Limit to files matching these globs"), mcp.Items(map[string]any{"type": "string"}))
}

type handlers struct {
	factory *Factory
	version string
}

func (h *handlers) queryOptions(req mcp.CallToolRequest) []model.QueryOption {
	var opts []model.QueryOption
	args := req.GetArguments()
	if _, ok := args["raise_on_stale"]; ok {
		opts = append(opts, model.WithRaiseOnStale(req.GetBool("raise_on_stale", false)))
	}
	if globs := req.GetStringSlice("tracked_globs", nil); len(globs) > 0 {
		opts = append(opts, model.WithTrackedGlobs(globs...))
	}
	return opts
}

func (h *handlers) fileTool(fn func(*model.Model, string, []model.QueryOption) (interface{}, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if path == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		m, err := h.factory.Model(req.GetString("root", ""), req.GetString("resultset", ""))
		if err != nil {
			return toolError(err), nil
		}
		out, err := fn(m, path, h.queryOptions(req))
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(out)
	}
}

func (h *handlers) summary(m *model.Model, path string, opts []model.QueryOption) (interface{}, error) {
	r, err := m.SummaryFor(path, opts...)
	if err != nil {
		return nil, err
	}
	r.File = m.Relativize(r.File)
	return r, nil
}

func (h *handlers) raw(m *model.Model, path string, opts []model.QueryOption) (interface{}, error) {
	r, err := m.RawFor(path, opts...)
	if err != nil {
		return nil, err
	}
	r.File = m.Relativize(r.File)
	return r, nil
}

func (h *handlers) uncovered(m *model.Model, path string, opts []model.QueryOption) (interface{}, error) {
	r, err := m.UncoveredFor(path, opts...)
	if err != nil {
		return nil, err
	}
	r.File = m.Relativize(r.File)
	return r, nil
}

func (h *handlers) detailed(m *model.Model, path string, opts []model.QueryOption) (interface{}, error) {
	r, err := m.DetailedFor(path, opts...)
	if err != nil {
		return nil, err
	}
	r.File = m.Relativize(r.File)
	return r, nil
}

func (h *handlers) list(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := h.factory.Model(req.GetString("root", ""), req.GetString("resultset", ""))
	if err != nil {
		return toolError(err), nil
	}
	opts := h.queryOptions(req)
	if s := req.GetString("sort_order", ""); s != "" {
		order, err := model.ParseSortOrder(s)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opts = append(opts, model.WithSortOrder(order))
	}
	list, err := m.List(opts...)
	if err != nil {
		return toolError(err), nil
	}
	for i := range list.Files {
		list.Files[i].File = m.Relativize(list.Files[i].File)
	}
	for i := range list.SkippedFiles {
		list.SkippedFiles[i].File = m.Relativize(list.SkippedFiles[i].File)
	}
	return jsonResult(list)
}

func (h *handlers) totals(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := h.factory.Model(req.GetString("root", ""), req.GetString("resultset", ""))
	if err != nil {
		return toolError(err), nil
	}
	totals, err := m.ProjectTotals(h.queryOptions(req)...)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(totals)
}

func (h *handlers) versionTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]string{"version": h.version})
}

// toolError reports failures as tool results carrying the user message.
func toolError(err error) *mcp.CallToolResult {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return mcp.NewToolResultError(um.UserMessage())
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
