// Package coverage holds the data model shared by the loader, the cache, the
// staleness checker and the query façade, together with the error taxonomy
// they report through.
package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// NotExecutable marks a line that carries no hit count (comments, blank lines).
// It is encoded as JSON null.
const NotExecutable = -1

// Lines holds one element per source line: a non-negative hit count or
// NotExecutable.
type Lines []int

// MarshalJSON encodes absent lines as null.
func (l Lines) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, hits := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		if hits < 0 {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.Itoa(hits))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalYAML mirrors MarshalJSON so YAML output keeps null markers.
func (l Lines) MarshalYAML() (interface{}, error) {
	out := make([]interface{}, len(l))
	for i, hits := range l {
		if hits >= 0 {
			out[i] = hits
		}
	}
	return out, nil
}

// UnmarshalJSON accepts an array of null or whole, non-negative numbers.
func (l *Lines) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("lines must be an array: %w", err)
	}
	lines, err := ParseLines(raw)
	if err != nil {
		return err
	}
	*l = lines
	return nil
}

// ParseLines converts raw JSON elements into Lines. Any element that is not
// null or a whole non-negative number makes the whole array invalid.
func ParseLines(raw []json.RawMessage) (Lines, error) {
	lines := make(Lines, len(raw))
	for i, elem := range raw {
		trimmed := bytes.TrimSpace(elem)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			lines[i] = NotExecutable
			continue
		}
		if n, err := strconv.ParseInt(string(trimmed), 10, strconv.IntSize); err == nil {
			if n < 0 {
				return nil, fmt.Errorf("line %d: value %s is not a hit count", i+1, trimmed)
			}
			lines[i] = int(n)
			continue
		}
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return nil, fmt.Errorf("line %d: value %s is not a hit count", i+1, trimmed)
		}
		if f < 0 || f != math.Trunc(f) || f >= math.MaxInt {
			return nil, fmt.Errorf("line %d: value %s is not a hit count", i+1, trimmed)
		}
		lines[i] = int(f)
	}
	return lines, nil
}

// Entry is the coverage recorded for one source file.
type Entry struct {
	Lines Lines `json:"lines" yaml:"lines"`

	// OpenEnded entries stop at the last executable line rather than the last
	// source line (Go cover profiles), so only a shorter source file counts as
	// a length mismatch.
	OpenEnded bool `json:"-" yaml:"-"`
}

// SkippedEntry records a per-file entry dropped while loading.
type SkippedEntry struct {
	File       string `json:"file" yaml:"file"`
	Error      string `json:"error" yaml:"error"`
	ErrorClass string `json:"error_class" yaml:"error_class"`
}

// ModelData is an immutable parse of one resultset. A changed resultset always
// produces a new ModelData; callers may keep a reference for as long as they
// like.
type ModelData struct {
	CoverageMap   map[string]Entry
	Timestamp     int64
	ResultsetPath string
	SuiteNames    []string
	Fingerprint   string
	Skipped       []SkippedEntry
}

// Files returns the coverage map keys in sorted order.
func (d *ModelData) Files() []string {
	files := make([]string, 0, len(d.CoverageMap))
	for f := range d.CoverageMap {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// SkippedFor returns the skip record for file, if the loader dropped it.
func (d *ModelData) SkippedFor(file string) (SkippedEntry, bool) {
	for _, s := range d.Skipped {
		if s.File == file {
			return s, true
		}
	}
	return SkippedEntry{}, false
}

// Logger is the logging capability the core needs. Implementations must never
// panic.
type Logger interface {
	SafeLog(message string)
}

type nopLogger struct{}

func (nopLogger) SafeLog(string) {}

// NopLogger discards every message.
var NopLogger Logger = nopLogger{}

// OrNop returns l, or NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger
	}
	return l
}
