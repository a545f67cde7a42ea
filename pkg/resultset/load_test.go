package resultset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/cov-loupe/pkg/coverage"
)

type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingLogger) SafeLog(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingLogger) joined() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.msgs, "\n")
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMergesSuites(t *testing.T) {
	root := "/proj"
	rs := writeFile(t, filepath.Join(t.TempDir(), ".resultset.json"), `{
		"RSpec": {"coverage": {"/proj/lib/x.rb": {"lines": [3, 2, null]}}, "timestamp": 1700000000},
		"Minitest": {"coverage": {"lib/x.rb": {"lines": [null, 5, null, 1]},
		                          "/proj/lib/y.rb": [1, 0]}, "timestamp": 1700000100}
	}`)

	data, err := Load(rs, Options{Root: root, CaseSensitive: true})
	require.NoError(t, err)

	assert.Equal(t, coverage.Lines{3, 7, coverage.NotExecutable, 1}, data.CoverageMap["/proj/lib/x.rb"].Lines)
	assert.Equal(t, coverage.Lines{1, 0}, data.CoverageMap["/proj/lib/y.rb"].Lines)
	assert.Equal(t, int64(1700000100), data.Timestamp)
	assert.Equal(t, []string{"Minitest", "RSpec"}, data.SuiteNames)
	assert.Equal(t, rs, data.ResultsetPath)
	assert.Len(t, data.Fingerprint, 32)
	assert.Empty(t, data.Skipped)
}

func TestMergeLines(t *testing.T) {
	n := coverage.NotExecutable
	assert.Equal(t, coverage.Lines{3}, mergeLines(coverage.Lines{3}, coverage.Lines{n}))
	assert.Equal(t, coverage.Lines{7}, mergeLines(coverage.Lines{2}, coverage.Lines{5}))
	assert.Equal(t, coverage.Lines{n, 0, 4}, mergeLines(coverage.Lines{n, 0}, coverage.Lines{n, n, 4}))
	assert.Equal(t, coverage.Lines{}, mergeLines(nil, coverage.Lines{}))
}

func TestLoadCaseInsensitiveKeysCoalesce(t *testing.T) {
	rs := writeFile(t, filepath.Join(t.TempDir(), "rs.json"), `{
		"a": {"coverage": {"/proj/Lib/A.rb": {"lines": [1]}}, "timestamp": 1},
		"b": {"coverage": {"/proj/lib/a.rb": {"lines": [2]}}, "timestamp": 1}
	}`)

	data, err := Load(rs, Options{Root: "/proj", CaseSensitive: false})
	require.NoError(t, err)
	require.Len(t, data.CoverageMap, 1)
	assert.Equal(t, coverage.Lines{3}, data.CoverageMap["/proj/Lib/A.rb"].Lines)

	data, err = Load(rs, Options{Root: "/proj", CaseSensitive: true})
	require.NoError(t, err)
	assert.Len(t, data.CoverageMap, 2)
}

func TestLoadDuplicateSuitesLogged(t *testing.T) {
	rs := writeFile(t, filepath.Join(t.TempDir(), "rs.json"), `{
		"RSpec": {"coverage": {"/p/a.rb": [1]}, "timestamp": 5},
		"RSpec": {"coverage": {"/p/a.rb": [2]}, "timestamp": 6}
	}`)
	logger := &recordingLogger{}
	data, err := Load(rs, Options{Root: "/p", CaseSensitive: true, Logger: logger})
	require.NoError(t, err)
	assert.Equal(t, []string{"RSpec"}, data.SuiteNames)
	assert.Equal(t, coverage.Lines{3}, data.CoverageMap["/p/a.rb"].Lines)
	assert.Contains(t, logger.joined(), "Merging duplicate coverage suites for RSpec")
}

func TestLoadSkipsMalformedEntries(t *testing.T) {
	rs := writeFile(t, filepath.Join(t.TempDir(), "rs.json"), `{
		"s": {"coverage": {
			"/p/good.rb": {"lines": [1, null]},
			"/p/neg.rb": {"lines": [1, -2]},
			"/p/str.rb": {"lines": ["x"]},
			"/p/scalar.rb": 12,
			"/p/nolines.rb": {"branches": {}}
		}, "timestamp": 1}
	}`)
	data, err := Load(rs, Options{Root: "/p", CaseSensitive: true})
	require.NoError(t, err)

	assert.Len(t, data.CoverageMap, 1)
	require.Len(t, data.Skipped, 4)
	for _, s := range data.Skipped {
		assert.Equal(t, "CoverageDataError", s.ErrorClass)
		assert.NotEmpty(t, s.Error)
	}
	_, ok := data.SkippedFor("/p/neg.rb")
	assert.True(t, ok)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"), Options{})
	var nf *coverage.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "resultset", nf.Kind)

	tests := map[string]string{
		"invalid json": `{"a": `,
		"array":        `[1, 2]`,
		"no suites":    `{"a": {"timestamp": 1}, "b": {"coverage": null}}`,
		"bad coverage": `{"a": {"coverage": [1]}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			rs := writeFile(t, filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".json"), content)
			_, err := Load(rs, Options{})
			var fe *coverage.FormatError
			require.True(t, errors.As(err, &fe), "got %v", err)
			assert.Equal(t, rs, fe.Path)
		})
	}
}

func TestLoadPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	rs := writeFile(t, filepath.Join(t.TempDir(), "rs.json"), `{}`)
	require.NoError(t, os.Chmod(rs, 0))
	_, err := Load(rs, Options{})
	var pe *coverage.PermissionError
	assert.True(t, errors.As(err, &pe))
}

func TestSuiteTimestamp(t *testing.T) {
	local := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local).Unix()
	tests := []struct {
		name   string
		suite  string
		want   int64
		logged string
	}{
		{"integer", `{"timestamp": 1700000000}`, 1700000000, ""},
		{"float", `{"timestamp": 1700000000.9}`, 1700000000, ""},
		{"numeric string", `{"timestamp": " 1700000000.5 "}`, 1700000000, ""},
		{"rfc3339", `{"timestamp": "2023-11-14T22:13:20Z"}`, 1700000000, ""},
		{"ruby time", `{"timestamp": "2023-11-14 22:13:20 +0000"}`, 1700000000, ""},
		{"local time", `{"timestamp": "2024-05-01 12:00:00"}`, local, ""},
		{"created_at fallback", `{"timestamp": null, "created_at": 1700000001}`, 1700000001, ""},
		{"timestamp wins", `{"timestamp": 5, "created_at": 9}`, 5, ""},
		{"negative", `{"timestamp": -50}`, 0, "defaulting to 0"},
		{"missing", `{}`, 0, "defaulting to 0"},
		{"empty string", `{"timestamp": ""}`, 0, "defaulting to 0"},
		{"garbage", `{"timestamp": "yesterday-ish"}`, 0, "could not be parsed"},
		{"wrong type", `{"timestamp": true}`, 0, "could not be parsed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fields map[string]json.RawMessage
			require.NoError(t, json.Unmarshal([]byte(tt.suite), &fields))
			logger := &recordingLogger{}
			assert.Equal(t, tt.want, suiteTimestamp(fields, logger))
			if tt.logged == "" {
				assert.Empty(t, logger.joined())
			} else {
				assert.Contains(t, logger.joined(), tt.logged)
			}
		})
	}
}

func TestLoadGoProfile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "go.mod"), "module example.com/demo\n\ngo 1.22\n")
	rs := writeFile(t, filepath.Join(root, "cover.out"), `mode: set
example.com/demo/pkg/a.go:3.10,5.2 1 1
example.com/demo/pkg/a.go:7.1,7.20 1 0
example.com/demo/main.go:1.1,2.5 2 3
`)
	logger := &recordingLogger{}
	data, err := Load(rs, Options{Root: root, CaseSensitive: true, Logger: logger})
	require.NoError(t, err)

	n := coverage.NotExecutable
	a := data.CoverageMap[filepath.Join(root, "pkg", "a.go")]
	assert.True(t, a.OpenEnded)
	assert.Equal(t, coverage.Lines{n, n, 1, 1, 1, n, 0}, a.Lines)
	assert.Equal(t, coverage.Lines{3, 3}, data.CoverageMap[filepath.Join(root, "main.go")].Lines)
	assert.Equal(t, []string{GoCoverSuite}, data.SuiteNames)
	assert.Zero(t, data.Timestamp)
	assert.Contains(t, logger.joined(), "no timestamp")
}

func TestLocate(t *testing.T) {
	root := t.TempDir()

	_, err := Locate(root, "", nil)
	var nf *coverage.NotFoundError
	require.True(t, errors.As(err, &nf))

	want := writeFile(t, filepath.Join(root, "coverage", ".resultset.json"), `{}`)
	got, err := Locate(root, "", nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = Locate(root, filepath.Join(root, "coverage"), nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = Locate(root, want, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Locate(root, filepath.Join(root, "tmp"), nil)
	require.True(t, errors.As(err, &nf))

	empty := filepath.Join(root, "empty")
	require.NoError(t, os.Mkdir(empty, 0755))
	_, err = Locate(root, empty, nil)
	require.True(t, errors.As(err, &nf))
	assert.Contains(t, nf.Error(), DefaultName)
}

func TestLocateAmbiguous(t *testing.T) {
	cwd := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(cwd, "coverage", ".resultset.json"), `{}`)
	writeFile(t, filepath.Join(root, "coverage", ".resultset.json"), `{}`)
	t.Chdir(cwd)

	_, err := Locate(root, "coverage", nil)
	var ce *coverage.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.UserMessage(), "ambiguous")

	got, err := Locate(root, filepath.Join(root, "coverage"), nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "coverage", ".resultset.json"), got)
}
