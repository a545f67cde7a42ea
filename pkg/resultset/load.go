// Package resultset parses coverage snapshots into coverage.ModelData.
//
// A resultset is a JSON object of test suites, each carrying a coverage map
// from file name to per-line hit counts and a timestamp. Suites are merged by
// summing hit counts. Go cover profiles are accepted as well.
package resultset

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/jupierce/cov-loupe/pkg/coverage"
)

// Options controls how a resultset is interpreted.
type Options struct {
	// Root anchors relative file names. Empty means the working directory.
	Root string
	// CaseSensitive is false when the root's volume folds case; keys that
	// differ only by case are then merged.
	CaseSensitive bool
	Logger        coverage.Logger
}

// Load reads and parses the resultset at path.
func Load(path string, opts Options) (*coverage.ModelData, error) {
	opts.Logger = coverage.OrNop(opts.Logger)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, readError(path, err)
	}
	return Parse(path, data, opts)
}

// Parse builds ModelData from resultset bytes already in memory. path is
// recorded on the result and used in error messages.
func Parse(path string, data []byte, opts Options) (*coverage.ModelData, error) {
	opts.Logger = coverage.OrNop(opts.Logger)
	if isGoProfile(data) {
		return parseGoProfile(path, data, opts)
	}

	suites, err := decodeObject(data)
	if err != nil {
		return nil, &coverage.FormatError{Path: path, Reason: "resultset must be a JSON object of test suites", Err: err}
	}

	m := newMerger(opts.Root, opts.CaseSensitive)
	var (
		names     []string
		timestamp int64
		counts    = make(map[string]int)
	)
	for _, suite := range suites {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(suite.value, &fields); err != nil || fields == nil {
			continue
		}
		cov, ok := fields["coverage"]
		if !ok || isNull(cov) {
			continue
		}
		files, err := decodeObject(cov)
		if err != nil {
			return nil, &coverage.FormatError{
				Path:   path,
				Reason: fmt.Sprintf("invalid coverage data structure for suite %q", suite.key),
				Err:    err,
			}
		}

		counts[suite.key]++
		if counts[suite.key] == 1 {
			names = append(names, suite.key)
		}
		if ts := suiteTimestamp(fields, opts.Logger); ts > timestamp {
			timestamp = ts
		}
		for _, f := range files {
			lines, err := parseFileEntry(f.value)
			if err != nil {
				m.skip(f.key, err.Error())
				continue
			}
			m.add(f.key, coverage.Entry{Lines: lines})
		}
	}

	if len(names) == 0 {
		return nil, &coverage.FormatError{Path: path, Reason: "no test suite with coverage data found"}
	}

	var dups []string
	for _, name := range names {
		if counts[name] > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		opts.Logger.SafeLog("Merging duplicate coverage suites for " + strings.Join(dups, ", "))
	}
	sort.Strings(names)

	entries, skipped := m.result()
	for _, s := range skipped {
		opts.Logger.SafeLog(fmt.Sprintf("Skipping malformed coverage entry for %s: %s", s.File, s.Error))
	}
	return &coverage.ModelData{
		CoverageMap:   entries,
		Timestamp:     timestamp,
		ResultsetPath: path,
		SuiteNames:    names,
		Fingerprint:   Fingerprint(data),
		Skipped:       skipped,
	}, nil
}

// Fingerprint is the MD5 hex digest of a resultset's bytes.
func Fingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// parseFileEntry accepts {"lines": [...]} or a bare array.
func parseFileEntry(raw json.RawMessage) (coverage.Lines, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty coverage entry")
	}
	var arr json.RawMessage
	switch raw[0] {
	case '[':
		arr = raw
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("invalid coverage entry: %w", err)
		}
		lines, ok := obj["lines"]
		if !ok || isNull(lines) {
			return nil, errors.New("coverage entry has no lines array")
		}
		arr = lines
	default:
		return nil, errors.New("coverage entry must be an object with lines or an array")
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(arr, &elems); err != nil {
		return nil, errors.New("lines must be an array")
	}
	lines, err := coverage.ParseLines(elems)
	if err != nil {
		return nil, fmt.Errorf("invalid lines: %w", err)
	}
	return lines, nil
}

type member struct {
	key   string
	value json.RawMessage
}

// decodeObject decodes a JSON object keeping member order and duplicate
// keys, both of which a map would lose.
func decodeObject(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON object")
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func readError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &coverage.NotFoundError{Kind: "resultset", Path: path, Err: err}
	case errors.Is(err, fs.ErrPermission):
		return &coverage.PermissionError{Path: path, Err: err}
	default:
		return &coverage.FormatError{Path: path, Reason: "cannot read resultset", Err: err}
	}
}
