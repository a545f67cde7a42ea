package report

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

func identity(s string) string { return s }

func sampleList() *model.ListResult {
	return &model.ListResult{
		Files: []model.Row{
			{File: "lib/a.rb", Covered: 2, Total: 2, Percentage: 100, Stale: coverage.VerdictOK},
			{File: "lib/b.rb", Covered: 1, Total: 4, Percentage: 25, Stale: coverage.VerdictNewer},
		},
		SkippedFiles:        []coverage.SkippedEntry{},
		MissingTrackedFiles: []string{},
		NewerFiles:          []string{"lib/b.rb"},
		DeletedFiles:        []string{},
		LengthMismatchFiles: []string{},
		UnreadableFiles:     []string{},
		ErroredFiles:        []string{},
		Timestamp:           1700000000,
		ResultsetPath:       "/p/coverage/.resultset.json",
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, sampleList(), identity))
	out := buf.String()

	assert.Contains(t, out, "lib/a.rb")
	assert.Contains(t, out, "100.00")
	assert.Contains(t, out, "25.00")
	assert.Contains(t, out, "Files: total 2, stale 1")
	assert.Contains(t, out, "Lines: 3/6 (50.00%)")
	assert.Contains(t, out, "T = newer than coverage")
	assert.Less(t, strings.Index(out, "lib/a.rb"), strings.Index(out, "lib/b.rb"))
	assert.NotContains(t, out, "│", "non-terminal output uses ASCII borders")
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, &model.ListResult{}, identity))
	assert.Equal(t, "No coverage data found\n", buf.String())
}

func TestTotalsTable(t *testing.T) {
	var buf bytes.Buffer
	totals := &model.Totals{
		Lines:         model.LineTotals{Covered: 3, Uncovered: 1, Total: 4},
		Percentage:    75,
		Files:         model.FileTotals{Total: 2, OK: 1, Stale: 1},
		ExcludedFiles: model.ExcludedFiles{Newer: 1},
	}
	require.NoError(t, TotalsTable(&buf, totals))
	out := buf.String()
	assert.Contains(t, out, "75.00%")
	assert.Contains(t, out, "Excluded: newer")
	assert.NotContains(t, out, "Excluded: deleted")
}

func TestSingleFileRenderers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SummaryLine(&buf, &model.FileSummary{
		File: "a.rb", Summary: coverage.Summary{Covered: 1, Total: 3, Percentage: 33.33}, Stale: coverage.VerdictLengthMismatch,
	}, identity))
	assert.Equal(t, "a.rb  33.33% (1/3)  [stale: length_mismatch]\n", buf.String())

	buf.Reset()
	require.NoError(t, UncoveredLine(&buf, &model.FileUncovered{
		File: "a.rb", Uncovered: []int{1, 2, 3, 7, 9, 10}, Stale: coverage.VerdictOK,
	}, identity))
	assert.Contains(t, buf.String(), "Uncovered lines: 1-3, 7, 9-10")

	buf.Reset()
	require.NoError(t, FileTable(&buf, &model.FileDetailed{
		File:  "a.rb",
		Lines: []coverage.LineDetail{{Line: 1, Hits: 4, Covered: true}, {Line: 2, Hits: 0}},
		Stale: coverage.VerdictOK,
	}, identity))
	assert.Contains(t, buf.String(), "yes")
	assert.Contains(t, buf.String(), "no")
}

func TestFormatLineList(t *testing.T) {
	assert.Equal(t, "none", formatLineList(nil))
	assert.Equal(t, "5", formatLineList([]int{5}))
	assert.Equal(t, "1-2, 4", formatLineList([]int{1, 2, 4}))
}

func TestJSONAndYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleList()))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []interface{}{}, decoded["skipped_files"])
	assert.Equal(t, "newer", decoded["files"].([]interface{})[1].(map[string]interface{})["stale"])

	buf.Reset()
	raw := &model.FileRaw{File: "a.rb", Lines: coverage.Lines{1, coverage.NotExecutable, 0}, Stale: coverage.VerdictOK}
	require.NoError(t, YAML(&buf, raw))
	var y map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &y))
	assert.Equal(t, []interface{}{1, nil, 0}, y["lines"])
}

func TestStaleMessage(t *testing.T) {
	msg := StaleMessage(sampleList())
	assert.Contains(t, msg, "Newer files (1)")
	assert.Contains(t, msg, "lib/b.rb")

	fresh := sampleList()
	fresh.NewerFiles = []string{}
	assert.Empty(t, StaleMessage(fresh))
}

func TestHTML(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.rb")
	require.NoError(t, os.WriteFile(src, []byte("def a\n\tx < y\nend\n"), 0644))

	list := &model.ListResult{
		Files: []model.Row{
			{File: src, Covered: 1, Total: 2, Percentage: 50, Stale: coverage.VerdictNewer},
			{File: filepath.Join(dir, "gone.rb"), Covered: 1, Total: 1, Percentage: 100},
		},
		Timestamp: 1700000000,
	}
	cov := map[string]coverage.Entry{src: {Lines: coverage.Lines{1, 0, coverage.NotExecutable}}}
	page := BuildPage("demo", list, cov, func(p string) string { return filepath.Base(p) })
	require.Len(t, page.Files, 1)
	assert.Equal(t, 1, page.Good)

	var buf bytes.Buffer
	require.NoError(t, HTML(&buf, page))
	out := buf.String()
	assert.Contains(t, out, "<title>Coverage: demo</title>")
	assert.Contains(t, out, `<tr class="cov-hit"><td class="line-num" id="L1">1</td>`)
	assert.Contains(t, out, `<tr class="cov-none"><td class="line-num" id="L2">2</td>`)
	assert.Contains(t, out, "x &lt; y")
	assert.Contains(t, out, `<span class="stale">newer</span>`)
	assert.Contains(t, out, "2023-11-14T22:13:20Z")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteFile(path, func(w io.Writer) error { return JSON(w, map[string]int{"a": 1}) }))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))
}
