// Package model answers coverage queries for one project: per-file
// summaries, raw and detailed line data, listings and project totals.
//
// A Model holds no coverage itself. Every call pulls the current ModelData
// from the shared datacache.Cache, so a long-lived Model sees new resultsets
// as soon as they are written.
package model

import (
	"sort"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/datacache"
	"github.com/jupierce/cov-loupe/pkg/paths"
	"github.com/jupierce/cov-loupe/pkg/resultset"
	"github.com/jupierce/cov-loupe/pkg/staleness"
)

// Config describes the project a Model serves.
type Config struct {
	Root         string
	Resultset    string
	TrackedGlobs []string
	RaiseOnStale bool
	Logger       coverage.Logger
	Normalizer   *paths.Normalizer
}

// Model is safe for concurrent use.
type Model struct {
	root          string
	resultsetPath string
	trackedGlobs  []string
	raiseOnStale  bool
	logger        coverage.Logger
	normalizer    *paths.Normalizer
	cache         *datacache.Cache
}

// New resolves the resultset and loads it once so configuration errors
// surface immediately. A nil cache gets a private one.
func New(cfg Config, cache *datacache.Cache) (*Model, error) {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	m := &Model{
		root:         paths.Expand(root, ""),
		trackedGlobs: paths.CleanPatterns(cfg.TrackedGlobs),
		raiseOnStale: cfg.RaiseOnStale,
		logger:       coverage.OrNop(cfg.Logger),
		normalizer:   cfg.Normalizer,
		cache:        cache,
	}
	if m.cache == nil {
		m.cache = datacache.New()
	}
	if m.normalizer == nil {
		m.normalizer = paths.NewNormalizer(m.cache.CaseDetector())
	}

	rs, err := resultset.Locate(m.root, cfg.Resultset, m.normalizer)
	if err != nil {
		return nil, err
	}
	m.resultsetPath = rs

	if _, err := m.Data(); err != nil {
		return nil, err
	}
	return m, nil
}

// Root returns the absolute project root.
func (m *Model) Root() string { return m.root }

// ResultsetPath returns the resolved resultset file.
func (m *Model) ResultsetPath() string { return m.resultsetPath }

// Data returns the current parsed resultset.
func (m *Model) Data() (*coverage.ModelData, error) {
	return m.cache.Get(m.resultsetPath, m.root, m.logger)
}

// Relativize returns path relative to the root, keeping its casing.
func (m *Model) Relativize(path string) string {
	return m.normalizer.Relativize(path, m.root)
}

func (m *Model) checker(data *coverage.ModelData) *staleness.Checker {
	return staleness.New(m.root, data.Timestamp,
		staleness.WithNormalizer(m.normalizer),
		staleness.WithLogger(m.logger))
}

// fileCoverage resolves path and checks its staleness. With raiseOnStale a
// non-ok verdict becomes an error.
func (m *Model) fileCoverage(path string, q queryOptions) (string, coverage.Entry, coverage.Verdict, error) {
	data, err := m.Data()
	if err != nil {
		return "", coverage.Entry{}, "", err
	}
	key, err := m.resolve(data, path)
	if err != nil {
		return "", coverage.Entry{}, "", err
	}
	entry := data.CoverageMap[key]
	report := m.checker(data).CheckFile(key, entry)

	if q.raiseOnStale {
		if err := m.staleError(key, report, data.ResultsetPath); err != nil {
			return "", coverage.Entry{}, "", err
		}
	}
	return key, entry, report.Verdict, nil
}

func (m *Model) staleError(key string, r staleness.FileReport, resultsetPath string) error {
	rel := m.Relativize(key)
	switch r.Verdict {
	case coverage.VerdictOK:
		return nil
	case coverage.VerdictMissing:
		return &coverage.NotFoundError{Kind: "source file", Path: key, RelPath: rel, Err: r.Err}
	case coverage.VerdictUnreadable:
		return &coverage.PermissionError{Path: key, RelPath: rel, Err: r.Err}
	default:
		return &coverage.StaleDataError{
			File:              key,
			RelPath:           rel,
			Verdict:           r.Verdict,
			FileMtime:         r.FileMtime,
			CoverageTimestamp: r.CoverageTimestamp,
			SourceLines:       r.SourceLines,
			CoverageLines:     r.CoverageLines,
			ResultsetPath:     resultsetPath,
		}
	}
}

// SummaryFor returns covered/total/percentage for one file.
func (m *Model) SummaryFor(path string, opts ...QueryOption) (*FileSummary, error) {
	key, entry, verdict, err := m.fileCoverage(path, m.query(opts))
	if err != nil {
		return nil, err
	}
	return &FileSummary{File: key, Summary: coverage.Summarize(entry.Lines), Stale: verdict}, nil
}

// RawFor returns the per-line hit counts for one file. The lines are a copy;
// cached data is shared between queries.
func (m *Model) RawFor(path string, opts ...QueryOption) (*FileRaw, error) {
	key, entry, verdict, err := m.fileCoverage(path, m.query(opts))
	if err != nil {
		return nil, err
	}
	return &FileRaw{File: key, Lines: append(coverage.Lines(nil), entry.Lines...), Stale: verdict}, nil
}

// UncoveredFor returns the executable lines with no hits.
func (m *Model) UncoveredFor(path string, opts ...QueryOption) (*FileUncovered, error) {
	key, entry, verdict, err := m.fileCoverage(path, m.query(opts))
	if err != nil {
		return nil, err
	}
	return &FileUncovered{
		File:      key,
		Uncovered: coverage.Uncovered(entry.Lines),
		Summary:   coverage.Summarize(entry.Lines),
		Stale:     verdict,
	}, nil
}

// DetailedFor returns one row per executable line.
func (m *Model) DetailedFor(path string, opts ...QueryOption) (*FileDetailed, error) {
	key, entry, verdict, err := m.fileCoverage(path, m.query(opts))
	if err != nil {
		return nil, err
	}
	return &FileDetailed{
		File:    key,
		Lines:   coverage.Detailed(entry.Lines),
		Summary: coverage.Summarize(entry.Lines),
		Stale:   verdict,
	}, nil
}

// StalenessFor returns the verdict for one file and never fails; lookup
// problems are logged and reported as VerdictError.
func (m *Model) StalenessFor(path string) coverage.Verdict {
	data, err := m.Data()
	if err != nil {
		m.logger.SafeLog("Failed to check staleness for " + path + ": " + err.Error())
		return coverage.VerdictError
	}
	key, err := m.resolve(data, path)
	if err != nil {
		m.logger.SafeLog("Failed to check staleness for " + path + ": " + err.Error())
		return coverage.VerdictError
	}
	return m.checker(data).CheckFile(key, data.CoverageMap[key]).Verdict
}

// List returns a row per covered file in scope. With raiseOnStale, project
// staleness is reported before any malformed entry.
func (m *Model) List(opts ...QueryOption) (*ListResult, error) {
	q := m.query(opts)
	data, err := m.Data()
	if err != nil {
		return nil, err
	}
	patterns := paths.AbsPatterns(q.trackedGlobs, m.root)
	inScope := func(file string) bool {
		return len(patterns) == 0 || paths.MatchAny(file, patterns)
	}

	report := m.checker(data).CheckProject(data.CoverageMap, q.trackedGlobs)

	var skipped []coverage.SkippedEntry
	for _, s := range data.Skipped {
		if inScope(s.File) {
			skipped = append(skipped, s)
		}
	}

	if q.raiseOnStale {
		if report.Stale() {
			return nil, report.StaleError(data.ResultsetPath)
		}
		if len(skipped) > 0 {
			return nil, &coverage.CoverageDataError{File: m.Relativize(skipped[0].File), Reason: skipped[0].Error}
		}
	}
	for _, s := range skipped {
		m.logger.SafeLog("Skipping coverage row for " + s.File + ": " + s.Error)
	}

	rows := make([]Row, 0, len(data.CoverageMap))
	for file, entry := range data.CoverageMap {
		if !inScope(file) {
			continue
		}
		s := coverage.Summarize(entry.Lines)
		rows = append(rows, Row{
			File:       file,
			Covered:    s.Covered,
			Total:      s.Total,
			Percentage: s.Percentage,
			Stale:      report.Files[file],
		})
	}
	sortRows(rows, q.sortOrder)

	return &ListResult{
		Files:               rows,
		SkippedFiles:        nonNil(skipped),
		MissingTrackedFiles: nonNil(report.MissingTracked),
		NewerFiles:          nonNil(report.Newer),
		DeletedFiles:        nonNil(report.Missing),
		LengthMismatchFiles: nonNil(report.LengthMismatch),
		UnreadableFiles:     nonNil(report.Unreadable),
		ErroredFiles:        nonNil(report.Errored),
		Timestamp:           data.Timestamp,
		ResultsetPath:       data.ResultsetPath,
		Fingerprint:         data.Fingerprint,
	}, nil
}

// ProjectTotals aggregates the listed rows.
func (m *Model) ProjectTotals(opts ...QueryOption) (*Totals, error) {
	list, err := m.List(append(append([]QueryOption(nil), opts...), WithSortOrder(SortAscending))...)
	if err != nil {
		return nil, err
	}
	lines, pct, files := totalsFromRows(list.Files)
	return &Totals{
		Lines:      lines,
		Percentage: pct,
		Files:      files,
		ExcludedFiles: ExcludedFiles{
			Skipped:        len(list.SkippedFiles),
			MissingTracked: len(list.MissingTrackedFiles),
			Newer:          len(list.NewerFiles),
			Deleted:        len(list.DeletedFiles),
			LengthMismatch: len(list.LengthMismatchFiles),
			Unreadable:     len(list.UnreadableFiles),
		},
	}, nil
}

func sortRows(rows []Row, order SortOrder) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Percentage != b.Percentage {
			if order == SortAscending {
				return a.Percentage < b.Percentage
			}
			return a.Percentage > b.Percentage
		}
		return a.File < b.File
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
