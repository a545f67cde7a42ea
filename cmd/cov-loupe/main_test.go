package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.New("boom"), exitGeneric},
		{&coverage.ConfigError{Reason: "bad"}, exitConfig},
		{fmt.Errorf("wrapped: %w", &coverage.ConfigError{Reason: "bad"}), exitConfig},
		{&coverage.StaleDataError{File: "a.rb", Verdict: coverage.VerdictNewer}, exitStale},
		{&coverage.ProjectStaleError{Newer: []string{"a.rb"}}, exitStale},
		{&coverage.NotFoundError{Kind: "resultset", Path: "x"}, exitNotFound},
		{&coverage.PermissionError{Path: "x"}, exitNotFound},
		{&coverage.FormatError{Path: "x", Reason: "bad json"}, exitData},
		{&coverage.CoverageDataError{File: "a.rb", Reason: "negative"}, exitData},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, exitCode(c.err), "%T", c.err)
	}
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "Configuration error: bad", userMessage(fmt.Errorf("x: %w", &coverage.ConfigError{Reason: "bad"})))
	assert.Equal(t, "plain", userMessage(errors.New("plain")))
}

// resetFlags restores the global flag state between Execute calls.
func resetFlags() {
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	configPath, rootDir, resultset = "", ".", ""
	trackedGlobs, raiseOnStale = nil, false
	sortOrder, format, outputPath = string(model.DefaultSortOrder), "table", ""
	logFile, verbosity = "off", "info"
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Cleanup(resetFlags)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append(args, "--log-file", "off"))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	ts := time.Now().Add(-time.Hour).Unix()
	src := filepath.Join(root, "lib", "a.rb")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0755))
	require.NoError(t, os.WriteFile(src, []byte("a\nb\n"), 0644))
	old := time.Unix(ts-60, 0)
	require.NoError(t, os.Chtimes(src, old, old))

	rs := filepath.Join(root, "coverage", ".resultset.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(rs), 0755))
	body := fmt.Sprintf(`{"RSpec":{"timestamp":%d,"coverage":{%q:{"lines":[1,0]}}}}`, ts, src)
	require.NoError(t, os.WriteFile(rs, []byte(body), 0644))
	return root
}

func TestListCommandJSON(t *testing.T) {
	root := writeProject(t)
	out, err := execute(t, "list", "--root", root, "--format", "json")
	require.NoError(t, err)

	var list model.ListResult
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Files, 1)
	assert.Equal(t, filepath.Join("lib", "a.rb"), list.Files[0].File)
	assert.Equal(t, 50.0, list.Files[0].Percentage)
}

func TestConfigFileUnderFlags(t *testing.T) {
	root := writeProject(t)
	cfg := "format: yaml\nsort_order: ascending\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".cov-loupe.yml"), []byte(cfg), 0644))

	out, err := execute(t, "summary", "lib/a.rb", "--root", root)
	require.NoError(t, err)
	assert.Contains(t, out, "percentage: 50")

	out, err = execute(t, "summary", "lib/a.rb", "--root", root, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"percentage": 50`)
}

func TestCommandErrors(t *testing.T) {
	root := writeProject(t)

	_, err := execute(t, "summary", "lib/missing.rb", "--root", root)
	require.Error(t, err)
	assert.Equal(t, exitNotFound, exitCode(err))

	_, err = execute(t, "list", "--root", root, "--sort-order", "sideways")
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))

	_, err = execute(t, "list", "--root", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, exitNotFound, exitCode(err))

	_, err = execute(t, "list", "--no-such-flag")
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCode(err))
}
