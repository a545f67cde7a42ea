package resultset

import (
	"strings"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

// mergeLines sums hit counts per line. A line stays absent only when it is
// absent on both sides; the result takes the longer length.
func mergeLines(a, b coverage.Lines) coverage.Lines {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make(coverage.Lines, n)
	for i := range out {
		va, vb := coverage.NotExecutable, coverage.NotExecutable
		if i < len(a) {
			va = a[i]
		}
		if i < len(b) {
			vb = b[i]
		}
		switch {
		case va < 0 && vb < 0:
			out[i] = coverage.NotExecutable
		case va < 0:
			out[i] = vb
		case vb < 0:
			out[i] = va
		default:
			out[i] = va + vb
		}
	}
	return out
}

// merger accumulates per-file coverage from any number of suites. Keys are
// absolute paths; on case-insensitive volumes keys that differ only by case
// share the spelling seen first.
type merger struct {
	root          string
	caseSensitive bool
	entries       map[string]coverage.Entry
	canonical     map[string]string
	skipped       []coverage.SkippedEntry
}

func newMerger(root string, caseSensitive bool) *merger {
	return &merger{
		root:          root,
		caseSensitive: caseSensitive,
		entries:       make(map[string]coverage.Entry),
		canonical:     make(map[string]string),
	}
}

// key returns the map key for a file name as written in the resultset.
func (m *merger) key(file string) string {
	abs := paths.Expand(file, m.root)
	if m.caseSensitive {
		return abs
	}
	folded := strings.ToLower(paths.Slash(abs))
	if first, ok := m.canonical[folded]; ok {
		return first
	}
	m.canonical[folded] = abs
	return abs
}

func (m *merger) add(file string, entry coverage.Entry) {
	k := m.key(file)
	if prev, ok := m.entries[k]; ok {
		entry = coverage.Entry{
			Lines:     mergeLines(prev.Lines, entry.Lines),
			OpenEnded: prev.OpenEnded && entry.OpenEnded,
		}
	}
	m.entries[k] = entry
}

func (m *merger) skip(file, reason string) {
	k := m.key(file)
	m.skipped = append(m.skipped, coverage.SkippedEntry{
		File:       k,
		Error:      reason,
		ErrorClass: "CoverageDataError",
	})
}

// result drops skip records for files that some other suite supplied valid
// data for, and keeps one record per file.
func (m *merger) result() (map[string]coverage.Entry, []coverage.SkippedEntry) {
	var skipped []coverage.SkippedEntry
	seen := make(map[string]bool)
	for _, s := range m.skipped {
		if _, ok := m.entries[s.File]; ok || seen[s.File] {
			continue
		}
		seen[s.File] = true
		skipped = append(skipped, s)
	}
	return m.entries, skipped
}
