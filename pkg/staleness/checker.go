// Package staleness decides whether recorded coverage still describes the
// source files on disk.
package staleness

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/paths"
)

// FileReport is the verdict for one file plus the facts behind it.
type FileReport struct {
	Verdict           coverage.Verdict
	Exists            bool
	FileMtime         time.Time
	SourceLines       int
	CoverageLines     int
	CoverageTimestamp int64
	Err               error
}

// ProjectReport groups project files by verdict. Paths are relative to the
// root and sorted; a file appears in at most one list.
type ProjectReport struct {
	CoverageTimestamp int64
	TimestampMissing  bool
	Files             map[string]coverage.Verdict
	Newer             []string
	Missing           []string
	MissingTracked    []string
	LengthMismatch    []string
	Unreadable        []string
	Errored           []string
}

// Stale reports whether anything in the project is not ok.
func (r *ProjectReport) Stale() bool {
	return len(r.Newer)+len(r.Missing)+len(r.MissingTracked)+
		len(r.LengthMismatch)+len(r.Unreadable)+len(r.Errored) > 0
}

// Verdict is the highest-precedence verdict across the project.
func (r *ProjectReport) Verdict() coverage.Verdict {
	v := coverage.VerdictOK
	for _, fv := range r.Files {
		v = coverage.Worst(v, fv)
	}
	if len(r.MissingTracked) > 0 {
		v = coverage.Worst(v, coverage.VerdictMissing)
	}
	return v
}

// StaleError converts the report into the error raised by strict callers.
func (r *ProjectReport) StaleError(resultsetPath string) *coverage.ProjectStaleError {
	return &coverage.ProjectStaleError{
		CoverageTimestamp: r.CoverageTimestamp,
		Newer:             r.Newer,
		Missing:           r.Missing,
		MissingTracked:    r.MissingTracked,
		LengthMismatch:    r.LengthMismatch,
		Unreadable:        r.Unreadable,
		Errored:           r.Errored,
		ResultsetPath:     resultsetPath,
	}
}

// Checker compares coverage against the files under root. It holds no
// mutable state and may be shared.
type Checker struct {
	root       string
	timestamp  int64
	normalizer *paths.Normalizer
	logger     coverage.Logger
	stat       func(string) (os.FileInfo, error)
	open       func(string) (io.ReadCloser, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithNormalizer sets the normalizer used for relative paths and key
// comparison.
func WithNormalizer(n *paths.Normalizer) Option {
	return func(c *Checker) { c.normalizer = n }
}

// WithLogger sets where diagnostics go.
func WithLogger(l coverage.Logger) Option {
	return func(c *Checker) { c.logger = coverage.OrNop(l) }
}

// WithFileSystem replaces os.Stat and os.Open.
func WithFileSystem(stat func(string) (os.FileInfo, error), open func(string) (io.ReadCloser, error)) Option {
	return func(c *Checker) {
		c.stat = stat
		c.open = open
	}
}

// New returns a Checker for coverage recorded at timestamp (epoch seconds;
// 0 disables time-based checks).
func New(root string, timestamp int64, opts ...Option) *Checker {
	c := &Checker{
		root:      paths.Expand(root, ""),
		timestamp: timestamp,
		logger:    coverage.NopLogger,
		stat:      os.Stat,
		open:      func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
	if c.root == "" {
		c.root = paths.Expand(".", "")
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.normalizer == nil {
		c.normalizer = paths.NewNormalizer(nil)
	}
	return c
}

// CheckFile classifies one file. Precedence: length_mismatch, missing,
// newer, unreadable, error, ok.
func (c *Checker) CheckFile(absPath string, entry coverage.Entry) FileReport {
	r := FileReport{
		CoverageLines:     len(entry.Lines),
		CoverageTimestamp: c.timestamp,
	}

	info, err := c.stat(absPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.Verdict = coverage.VerdictMissing
		return r
	case errors.Is(err, fs.ErrPermission):
		r.Verdict = coverage.VerdictUnreadable
		r.Err = err
		return r
	case err != nil:
		r.Verdict = coverage.VerdictError
		r.Err = err
		return r
	case !info.Mode().IsRegular():
		r.Verdict = coverage.VerdictMissing
		return r
	}

	r.Exists = true
	r.FileMtime = info.ModTime()

	n, readErr := c.countLines(absPath)
	if readErr == nil {
		r.SourceLines = n
		if lengthMismatch(n, entry) {
			r.Verdict = coverage.VerdictLengthMismatch
			return r
		}
	}
	if c.timestamp > 0 && r.FileMtime.Unix() > c.timestamp {
		r.Verdict = coverage.VerdictNewer
		return r
	}
	if readErr != nil {
		r.Verdict = coverage.VerdictUnreadable
		r.Err = readErr
		return r
	}
	r.Verdict = coverage.VerdictOK
	return r
}

func lengthMismatch(sourceLines int, entry coverage.Entry) bool {
	covLines := len(entry.Lines)
	if covLines == 0 {
		return false
	}
	if entry.OpenEnded {
		return sourceLines < covLines
	}
	return sourceLines != covLines
}

// countLines counts lines the way a line iterator would: a final line
// without a trailing newline still counts.
func (c *Checker) countLines(path string) (int, error) {
	f, err := c.open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	count := 0
	last := byte('\n')
	for {
		n, err := f.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

// CheckProject classifies every coverage entry in scope and lists tracked
// files that have no coverage. When trackedGlobs is non-empty, only entries
// matching a glob are examined.
func (c *Checker) CheckProject(coverageMap map[string]coverage.Entry, trackedGlobs []string) *ProjectReport {
	r := &ProjectReport{
		CoverageTimestamp: c.timestamp,
		TimestampMissing:  c.timestamp <= 0,
		Files:             make(map[string]coverage.Verdict),
	}
	patterns := paths.AbsPatterns(trackedGlobs, c.root)

	for abs, entry := range coverageMap {
		if len(patterns) > 0 && !paths.MatchAny(abs, patterns) {
			continue
		}
		fr := c.CheckFile(abs, entry)
		r.Files[abs] = fr.Verdict
		rel := c.Relativize(abs)
		switch fr.Verdict {
		case coverage.VerdictNewer:
			r.Newer = append(r.Newer, rel)
		case coverage.VerdictMissing:
			r.Missing = append(r.Missing, rel)
		case coverage.VerdictLengthMismatch:
			r.LengthMismatch = append(r.LengthMismatch, rel)
		case coverage.VerdictUnreadable:
			r.Unreadable = append(r.Unreadable, rel)
		case coverage.VerdictError:
			r.Errored = append(r.Errored, rel)
		}
	}

	if len(patterns) > 0 {
		r.MissingTracked = c.missingTracked(coverageMap, trackedGlobs)
	}

	for _, list := range [][]string{r.Newer, r.Missing, r.MissingTracked, r.LengthMismatch, r.Unreadable, r.Errored} {
		sort.Strings(list)
	}
	return r
}

func (c *Checker) missingTracked(coverageMap map[string]coverage.Entry, trackedGlobs []string) []string {
	tracked, err := paths.GlobFiles(trackedGlobs, c.root)
	if err != nil {
		c.logger.SafeLog("Tracked globs could not be expanded: " + err.Error())
		return nil
	}
	covered := make(map[string]struct{}, len(coverageMap))
	for abs := range coverageMap {
		covered[c.normalizer.Normalize(abs, c.root)] = struct{}{}
	}
	var missing []string
	for _, abs := range tracked {
		if _, ok := covered[c.normalizer.Normalize(abs, c.root)]; ok {
			continue
		}
		missing = append(missing, c.Relativize(abs))
	}
	return missing
}

// Relativize returns abs relative to the checker's root when it lies inside.
func (c *Checker) Relativize(abs string) string {
	return strings.TrimPrefix(c.normalizer.Relativize(abs, c.root), "./")
}

// Root returns the absolute project root.
func (c *Checker) Root() string {
	return c.root
}

// Timestamp returns the coverage timestamp the checker compares against.
func (c *Checker) Timestamp() int64 {
	return c.timestamp
}
