// Package paths normalizes and relativizes file paths the way coverage keys
// and user input need to be compared: forward slashes, cleaned, and folded to
// lower case when the project lives on a case-insensitive volume.
package paths

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var drivePath = regexp.MustCompile(`^[A-Za-z]:[/\\]`)

// Normalizer compares paths using the case rules of the root's volume.
type Normalizer struct {
	detector CaseDetector
}

// NewNormalizer returns a Normalizer backed by detector, or by a private
// VolumeCache when detector is nil.
func NewNormalizer(detector CaseDetector) *Normalizer {
	if detector == nil {
		detector = NewVolumeCache()
	}
	return &Normalizer{detector: detector}
}

// CaseSensitive reports whether root's volume is case-sensitive.
func (n *Normalizer) CaseSensitive(root string) bool {
	if root == "" {
		root = "."
	}
	return n.detector.VolumeCaseSensitive(root)
}

// Normalize cleans path, converts separators to '/', and lowercases it when
// root's volume is case-insensitive.
func (n *Normalizer) Normalize(path, root string) string {
	if path == "" {
		return path
	}
	return normalForm(path, n.CaseSensitive(root))
}

// Within reports whether path is root or lies beneath it.
func (n *Normalizer) Within(path, root string) bool {
	if path == "" || root == "" {
		return false
	}
	absRoot := Expand(root, "")
	return within(Expand(path, absRoot), absRoot, n.CaseSensitive(absRoot))
}

// Relativize returns path relative to root, keeping the casing of path. A
// path outside root is returned unchanged.
func (n *Normalizer) Relativize(path, root string) string {
	if path == "" || root == "" {
		return path
	}
	absRoot := Expand(root, "")
	absPath := Expand(path, absRoot)
	cs := n.CaseSensitive(absRoot)
	if !within(absPath, absRoot, cs) {
		return path
	}

	rootParts := components(Slash(absRoot))
	pathParts := components(Slash(absPath))
	if len(pathParts) == len(rootParts) {
		return "."
	}
	return strings.Join(pathParts[len(rootParts):], "/")
}

func within(absPath, absRoot string, caseSensitive bool) bool {
	p := normalForm(absPath, caseSensitive)
	r := normalForm(absRoot, caseSensitive)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(r, "/")+"/")
}

func normalForm(path string, caseSensitive bool) string {
	s := Slash(path)
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

func components(slashed string) []string {
	var out []string
	for _, c := range strings.Split(slashed, "/") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Slash cleans path and converts its separators to '/'.
func Slash(path string) string {
	if path == "" {
		return path
	}
	s := strings.ReplaceAll(path, `\`, "/")
	s = filepath.ToSlash(filepath.Clean(filepath.FromSlash(s)))
	return s
}

// IsAbs reports whether path is absolute, including Windows drive paths such
// as C:/src on any platform.
func IsAbs(path string) bool {
	if path == "" {
		return false
	}
	if drivePath.MatchString(path) {
		return true
	}
	return filepath.IsAbs(path) || strings.HasPrefix(path, "/")
}

// Expand makes path absolute, resolving relative paths against base (or the
// working directory when base is empty) and a leading "~/" against the home
// directory.
func Expand(path, base string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if IsAbs(path) {
		return filepath.Clean(path)
	}
	if base == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return filepath.Clean(path)
		}
		return abs
	}
	return filepath.Join(Expand(base, ""), path)
}
