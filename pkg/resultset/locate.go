package resultset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

// DefaultName is the file looked for inside a directory.
const DefaultName = ".resultset.json"

// DefaultCandidates are tried under the root when no resultset is given.
var DefaultCandidates = []string{
	".resultset.json",
	"coverage/.resultset.json",
	"tmp/.resultset.json",
}

// Locate resolves the resultset to load. An explicit file is used as is; an
// explicit directory must contain .resultset.json. A relative explicit path
// that exists both under the working directory and under root is ambiguous.
// Without an explicit value the default candidates under root are tried.
// n decides whether an explicit path lies within root; nil uses a private one.
func Locate(root, explicit string, n *paths.Normalizer) (string, error) {
	if root == "" {
		root = "."
	}
	absRoot := paths.Expand(root, "")
	if n == nil {
		n = paths.NewNormalizer(nil)
	}

	if explicit != "" {
		path, err := resolveExplicit(absRoot, explicit, n)
		if err != nil {
			return "", err
		}
		return resolveCandidate(path)
	}

	for _, c := range DefaultCandidates {
		p := filepath.Join(absRoot, filepath.FromSlash(c))
		if isFile(p) {
			return p, nil
		}
	}
	return "", &coverage.NotFoundError{
		Kind: "resultset",
		Path: absRoot,
		Err:  fmt.Errorf("could not find .resultset.json under %q; run tests or set --resultset", absRoot),
	}
}

func resolveExplicit(absRoot, explicit string, n *paths.Normalizer) (string, error) {
	fromCwd := paths.Expand(explicit, "")
	fromRoot := paths.Expand(explicit, absRoot)

	if fromCwd != fromRoot && validLocation(fromCwd) && validLocation(fromRoot) {
		return "", &coverage.ConfigError{Reason: fmt.Sprintf(
			"ambiguous resultset location specified: both %s and %s exist; use ./ or an absolute path to disambiguate",
			fromCwd, fromRoot)}
	}
	switch {
	case validLocation(fromCwd):
		return fromCwd, nil
	case validLocation(fromRoot):
		return fromRoot, nil
	case n.Within(fromCwd, absRoot):
		return fromCwd, nil
	default:
		return fromRoot, nil
	}
}

func resolveCandidate(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", &coverage.NotFoundError{Kind: "resultset", Path: path, Err: err}
	}
	if !info.IsDir() {
		return path, nil
	}
	candidate := filepath.Join(path, DefaultName)
	if isFile(candidate) {
		return candidate, nil
	}
	return "", &coverage.NotFoundError{
		Kind: "resultset",
		Path: candidate,
		Err:  fmt.Errorf("no %s found in directory %s", DefaultName, path),
	}
}

func validLocation(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !info.IsDir() {
		return true
	}
	return isFile(filepath.Join(path, DefaultName))
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
