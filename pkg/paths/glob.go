package paths

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// CleanPatterns drops empty patterns.
func CleanPatterns(globs []string) []string {
	var out []string
	for _, g := range globs {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// AbsPatterns anchors relative glob patterns at root. The result uses '/'
// separators, as doublestar expects.
func AbsPatterns(globs []string, root string) []string {
	globs = CleanPatterns(globs)
	out := make([]string, 0, len(globs))
	for _, g := range globs {
		if IsAbs(g) {
			out = append(out, filepath.ToSlash(g))
			continue
		}
		base := filepath.ToSlash(Expand(root, ""))
		out = append(out, strings.TrimSuffix(escapeMeta(base), "/")+"/"+filepath.ToSlash(g))
	}
	return out
}

// MatchAny reports whether absPath matches one of the absolute patterns.
// Matching is purely lexical. Malformed patterns never match.
func MatchAny(absPath string, patterns []string) bool {
	target := filepath.ToSlash(absPath)
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, target); err == nil && ok {
			return true
		}
	}
	return false
}

// GlobFiles returns the regular files under root matched by globs, as sorted
// absolute paths.
func GlobFiles(globs []string, root string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range AbsPatterns(globs, root) {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// escapeMeta quotes glob metacharacters that may appear in a root directory.
func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
