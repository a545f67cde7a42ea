package model

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

// resolve finds the coverage key for a user-supplied path: exact key, then
// the same path after slash and case normalization, then a unique basename.
// Keys the loader skipped as malformed resolve to their CoverageDataError.
func (m *Model) resolve(data *coverage.ModelData, file string) (string, error) {
	abs := paths.Expand(file, m.root)

	if key, ok := m.lookupKey(data, abs); ok {
		return m.checkSkipped(data, key)
	}

	base := path.Base(paths.Slash(abs))
	var matches []string
	for _, key := range allKeys(data) {
		if path.Base(paths.Slash(key)) == base {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return "", &coverage.NotFoundError{
			Kind:    "coverage entry",
			Path:    abs,
			RelPath: m.Relativize(abs),
			Err:     fmt.Errorf("no coverage data found for file: %s", file),
		}
	case 1:
		return m.checkSkipped(data, matches[0])
	default:
		sort.Strings(matches)
		return "", &coverage.CoverageDataError{
			File:   file,
			Reason: fmt.Sprintf("multiple coverage entries match basename %s: %s", base, strings.Join(matches, ", ")),
		}
	}
}

func (m *Model) lookupKey(data *coverage.ModelData, abs string) (string, bool) {
	if _, ok := data.CoverageMap[abs]; ok {
		return abs, true
	}
	if _, ok := data.SkippedFor(abs); ok {
		return abs, true
	}
	want := m.normalizer.Normalize(abs, m.root)
	for _, key := range allKeys(data) {
		if m.normalizer.Normalize(key, m.root) == want {
			return key, true
		}
	}
	return "", false
}

func (m *Model) checkSkipped(data *coverage.ModelData, key string) (string, error) {
	if _, ok := data.CoverageMap[key]; ok {
		return key, nil
	}
	s, _ := data.SkippedFor(key)
	return "", &coverage.CoverageDataError{File: m.Relativize(key), Reason: s.Error}
}

// allKeys lists valid and skipped keys in a stable order.
func allKeys(data *coverage.ModelData) []string {
	keys := data.Files()
	for _, s := range data.Skipped {
		keys = append(keys, s.File)
	}
	return keys
}
