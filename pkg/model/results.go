package model

import (
	"github.com/jupierce/cov-loupe/pkg/coverage"
)

// FileSummary is the result of SummaryFor.
type FileSummary struct {
	File    string           `json:"file" yaml:"file"`
	Summary coverage.Summary `json:"summary" yaml:"summary"`
	Stale   coverage.Verdict `json:"stale" yaml:"stale"`
}

// FileRaw is the result of RawFor.
type FileRaw struct {
	File  string           `json:"file" yaml:"file"`
	Lines coverage.Lines   `json:"lines" yaml:"lines"`
	Stale coverage.Verdict `json:"stale" yaml:"stale"`
}

// FileUncovered is the result of UncoveredFor.
type FileUncovered struct {
	File      string           `json:"file" yaml:"file"`
	Uncovered []int            `json:"uncovered" yaml:"uncovered"`
	Summary   coverage.Summary `json:"summary" yaml:"summary"`
	Stale     coverage.Verdict `json:"stale" yaml:"stale"`
}

// FileDetailed is the result of DetailedFor.
type FileDetailed struct {
	File    string                `json:"file" yaml:"file"`
	Lines   []coverage.LineDetail `json:"lines" yaml:"lines"`
	Summary coverage.Summary      `json:"summary" yaml:"summary"`
	Stale   coverage.Verdict      `json:"stale" yaml:"stale"`
}

// Row is one file in a listing.
type Row struct {
	File       string           `json:"file" yaml:"file"`
	Covered    int              `json:"covered" yaml:"covered"`
	Total      int              `json:"total" yaml:"total"`
	Percentage float64          `json:"percentage" yaml:"percentage"`
	Stale      coverage.Verdict `json:"stale" yaml:"stale"`
}

// ListResult is the result of List. File lists are root-relative.
type ListResult struct {
	Files               []Row                   `json:"files" yaml:"files"`
	SkippedFiles        []coverage.SkippedEntry `json:"skipped_files" yaml:"skipped_files"`
	MissingTrackedFiles []string                `json:"missing_tracked_files" yaml:"missing_tracked_files"`
	NewerFiles          []string                `json:"newer_files" yaml:"newer_files"`
	DeletedFiles        []string                `json:"deleted_files" yaml:"deleted_files"`
	LengthMismatchFiles []string                `json:"length_mismatch_files" yaml:"length_mismatch_files"`
	UnreadableFiles     []string                `json:"unreadable_files" yaml:"unreadable_files"`
	ErroredFiles        []string                `json:"errored_files" yaml:"errored_files"`
	Timestamp           int64                   `json:"timestamp" yaml:"timestamp"`
	ResultsetPath       string                  `json:"resultset" yaml:"resultset"`
	Fingerprint         string                  `json:"fingerprint" yaml:"fingerprint"`
}

// LineTotals sums executable lines.
type LineTotals struct {
	Covered   int `json:"covered" yaml:"covered"`
	Uncovered int `json:"uncovered" yaml:"uncovered"`
	Total     int `json:"total" yaml:"total"`
}

// FileTotals counts listed files by freshness.
type FileTotals struct {
	Total int `json:"total" yaml:"total"`
	OK    int `json:"ok" yaml:"ok"`
	Stale int `json:"stale" yaml:"stale"`
}

// ExcludedFiles counts files left out of the totals.
type ExcludedFiles struct {
	Skipped        int `json:"skipped" yaml:"skipped"`
	MissingTracked int `json:"missing_tracked" yaml:"missing_tracked"`
	Newer          int `json:"newer" yaml:"newer"`
	Deleted        int `json:"deleted" yaml:"deleted"`
	LengthMismatch int `json:"length_mismatch" yaml:"length_mismatch"`
	Unreadable     int `json:"unreadable" yaml:"unreadable"`
}

// Totals is the result of ProjectTotals.
type Totals struct {
	Lines         LineTotals    `json:"lines" yaml:"lines"`
	Percentage    float64       `json:"percentage" yaml:"percentage"`
	Files         FileTotals    `json:"files" yaml:"files"`
	ExcludedFiles ExcludedFiles `json:"excluded_files" yaml:"excluded_files"`
}

func totalsFromRows(rows []Row) (LineTotals, float64, FileTotals) {
	var lines LineTotals
	var files FileTotals
	for _, r := range rows {
		lines.Covered += r.Covered
		lines.Total += r.Total
		files.Total++
		if r.Stale.Stale() {
			files.Stale++
		}
	}
	lines.Uncovered = lines.Total - lines.Covered
	files.OK = files.Total - files.Stale
	return lines, coverage.Percentage(lines.Covered, lines.Total), files
}
