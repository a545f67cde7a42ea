package paths

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
)

// CaseDetector reports whether the volume holding dir distinguishes file
// names by case.
type CaseDetector interface {
	VolumeCaseSensitive(dir string) bool
}

// StaticCase is a CaseDetector with a fixed answer.
type StaticCase bool

func (s StaticCase) VolumeCaseSensitive(string) bool { return bool(s) }

// VolumeCache detects volume case sensitivity and remembers the answer per
// absolute directory. Failed detections are not remembered.
type VolumeCache struct {
	mu    sync.Mutex
	cache map[string]bool
}

// NewVolumeCache returns an empty cache.
func NewVolumeCache() *VolumeCache {
	return &VolumeCache{cache: make(map[string]bool)}
}

// VolumeCaseSensitive returns true when dir lives on a case-sensitive volume.
// A missing directory or any filesystem error yields false.
func (c *VolumeCache) VolumeCaseSensitive(dir string) bool {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	c.mu.Lock()
	v, ok := c.cache[abs]
	c.mu.Unlock()
	if ok {
		return v
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return false
	}
	sensitive, err := detectCaseSensitivity(abs)
	if err != nil {
		return false
	}

	c.mu.Lock()
	c.cache[abs] = sensitive
	c.mu.Unlock()
	return sensitive
}

// Clear forgets every cached answer.
func (c *VolumeCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]bool)
}

// Snapshot returns a copy of the cached answers.
func (c *VolumeCache) Snapshot() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]bool, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

func detectCaseSensitivity(dir string) (bool, error) {
	name, err := findCandidate(dir)
	if err != nil {
		return false, err
	}
	if name != "" {
		return sensitiveByExistingFile(dir, name)
	}
	return sensitiveByProbe(dir)
}

// findCandidate returns a regular file in dir whose name contains a letter.
func findCandidate(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !hasLetter(e.Name()) {
			continue
		}
		return e.Name(), nil
	}
	return "", nil
}

func sensitiveByExistingFile(dir, name string) (bool, error) {
	original, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return false, err
	}
	alternate, err := os.Stat(filepath.Join(dir, swapCase(name)))
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !os.SameFile(original, alternate), nil
}

func sensitiveByProbe(dir string) (bool, error) {
	var probe string
	for {
		candidate := "CovLoupe_CaseSensitivity_Test_" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".tmp"
		if !anyVariantExists(dir, candidate) {
			probe = candidate
			break
		}
	}

	f, err := os.OpenFile(filepath.Join(dir, probe), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return false, err
	}
	_ = f.Close()
	defer func() {
		for _, v := range variants(probe) {
			_ = os.Remove(filepath.Join(dir, v))
		}
	}()

	visible := 0
	for _, v := range variants(probe) {
		if _, err := os.Lstat(filepath.Join(dir, v)); err == nil {
			visible++
		}
	}
	return visible == 1, nil
}

func variants(name string) []string {
	return []string{name, strings.ToUpper(name), strings.ToLower(name)}
}

func anyVariantExists(dir, name string) bool {
	for _, v := range variants(name) {
		if _, err := os.Lstat(filepath.Join(dir, v)); err == nil {
			return true
		}
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func swapCase(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z':
			return r - 'A' + 'a'
		}
		return r
	}, s)
}
