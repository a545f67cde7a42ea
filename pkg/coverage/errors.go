package coverage

import (
	"fmt"
	"strings"
	"time"
)

// NotFoundError reports a resultset, source file or coverage entry that does
// not exist.
type NotFoundError struct {
	Kind    string // "resultset", "source file", "coverage entry"
	Path    string
	RelPath string
	Err     error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s not found: %s", e.Kind, e.Path)
	if e.RelPath != "" && e.RelPath != e.Path {
		msg += fmt.Sprintf(" (%s)", e.RelPath)
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// UserMessage is the text shown by the CLI.
func (e *NotFoundError) UserMessage() string {
	if e.Kind == "resultset" {
		return "File error: " + e.Error() +
			"\n\nTry one of the following:\n" +
			"  - cd to a directory containing coverage/.resultset.json\n" +
			"  - Specify a resultset: cov-loupe -r PATH\n" +
			"  - Use -h for help: cov-loupe -h"
	}
	return "File error: " + e.Error()
}

// PermissionError reports a file that exists but cannot be read.
type PermissionError struct {
	Path    string
	RelPath string
	Err     error
}

func (e *PermissionError) Error() string {
	msg := "permission denied reading " + e.Path
	if e.RelPath != "" && e.RelPath != e.Path {
		msg += fmt.Sprintf(" (%s)", e.RelPath)
	}
	return msg
}

func (e *PermissionError) Unwrap() error { return e.Err }

func (e *PermissionError) UserMessage() string { return "File error: " + e.Error() }

// FormatError reports a resultset that is not valid JSON or lacks the expected
// shape.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid resultset %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid resultset %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) UserMessage() string { return "Coverage data error: " + e.Error() }

// CoverageDataError reports a malformed per-file coverage entry.
type CoverageDataError struct {
	File   string
	Reason string
}

func (e *CoverageDataError) Error() string {
	if e.File == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

func (e *CoverageDataError) UserMessage() string { return "Coverage data error: " + e.Error() }

// ConfigError reports unusable options, such as an ambiguous resultset path.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

func (e *ConfigError) UserMessage() string { return "Configuration error: " + e.Reason }

// StaleDataError reports that a single file's coverage no longer describes it.
type StaleDataError struct {
	File              string
	RelPath           string
	Verdict           Verdict
	FileMtime         time.Time
	CoverageTimestamp int64
	SourceLines       int
	CoverageLines     int
	ResultsetPath     string
}

// DeltaSeconds is file mtime minus coverage timestamp.
func (e *StaleDataError) DeltaSeconds() int64 {
	if e.FileMtime.IsZero() {
		return 0
	}
	return e.FileMtime.Unix() - e.CoverageTimestamp
}

func (e *StaleDataError) Error() string {
	name := e.RelPath
	if name == "" {
		name = e.File
	}
	var b strings.Builder
	fmt.Fprintf(&b, "coverage data appears stale for %s (%s)", name, e.Verdict)
	if !e.FileMtime.IsZero() {
		fmt.Fprintf(&b, ": file mtime %d, coverage timestamp %d, delta %s",
			e.FileMtime.Unix(), e.CoverageTimestamp, FormatDelta(e.DeltaSeconds()))
	} else {
		fmt.Fprintf(&b, ": coverage timestamp %d", e.CoverageTimestamp)
	}
	if e.Verdict == VerdictLengthMismatch {
		fmt.Fprintf(&b, ", source lines %d, coverage lines %d", e.SourceLines, e.CoverageLines)
	}
	return b.String()
}

// UserMessage renders the multi-line form with UTC and local times.
func (e *StaleDataError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Coverage data stale: " + e.Error() + "\n")
	fileUTC, fileLocal := "not found", "n/a"
	if !e.FileMtime.IsZero() {
		fileUTC, fileLocal = formatBoth(e.FileMtime)
	}
	covUTC, covLocal := formatBoth(time.Unix(e.CoverageTimestamp, 0))
	fmt.Fprintf(&b, "\nFile     - time: %s (local %s), lines: %d", fileUTC, fileLocal, e.SourceLines)
	fmt.Fprintf(&b, "\nCoverage - time: %s (local %s), lines: %d", covUTC, covLocal, e.CoverageLines)
	if !e.FileMtime.IsZero() {
		fmt.Fprintf(&b, "\nDelta    - file is %s newer than coverage", FormatDelta(e.DeltaSeconds()))
	}
	if e.ResultsetPath != "" {
		fmt.Fprintf(&b, "\nResultset - %s", e.ResultsetPath)
	}
	return b.String()
}

// ProjectStaleError reports project-level staleness found while listing.
type ProjectStaleError struct {
	CoverageTimestamp int64
	Newer             []string
	Missing           []string
	MissingTracked    []string
	LengthMismatch    []string
	Unreadable        []string
	Errored           []string
	ResultsetPath     string
}

func (e *ProjectStaleError) Error() string {
	var parts []string
	add := func(label string, files []string) {
		if len(files) > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", len(files), label))
		}
	}
	add("newer", e.Newer)
	add("missing tracked", e.MissingTracked)
	add("deleted", e.Missing)
	add("length mismatch", e.LengthMismatch)
	add("unreadable", e.Unreadable)
	add("errored", e.Errored)
	return fmt.Sprintf("coverage data appears stale for project (coverage timestamp %d): %s",
		e.CoverageTimestamp, strings.Join(parts, ", "))
}

// UserMessage lists the affected files, at most ten per category.
func (e *ProjectStaleError) UserMessage() string {
	var b strings.Builder
	b.WriteString("Coverage data stale (project): " + e.Error())
	covUTC, covLocal := formatBoth(time.Unix(e.CoverageTimestamp, 0))
	fmt.Fprintf(&b, "\nCoverage  - time: %s (local %s)", covUTC, covLocal)
	writeList(&b, e.Newer, "Newer files", "")
	writeList(&b, e.MissingTracked, "Missing files", "new in project, not in coverage")
	writeList(&b, e.Missing, "Coverage-only files", "deleted or moved in project")
	writeList(&b, e.LengthMismatch, "Line count mismatches", "")
	writeList(&b, e.Unreadable, "Unreadable files", "permission denied or read errors")
	writeList(&b, e.Errored, "Errored files", "")
	if e.ResultsetPath != "" {
		fmt.Fprintf(&b, "\nResultset - %s", e.ResultsetPath)
	}
	return b.String()
}

const maxListedFiles = 10

func writeList(b *strings.Builder, files []string, label, description string) {
	if len(files) == 0 {
		return
	}
	if description != "" {
		fmt.Fprintf(b, "\n%s (%s, %d):", label, description, len(files))
	} else {
		fmt.Fprintf(b, "\n%s (%d):", label, len(files))
	}
	for i, f := range files {
		if i == maxListedFiles {
			b.WriteString("\n  ...")
			break
		}
		fmt.Fprintf(b, "\n  - %s", f)
	}
}

func formatBoth(t time.Time) (string, string) {
	return t.UTC().Format(time.RFC3339), t.Local().Format(time.RFC3339)
}

// FormatDelta renders a signed second count such as "+10s".
func FormatDelta(seconds int64) string {
	if seconds < 0 {
		return fmt.Sprintf("-%ds", -seconds)
	}
	return fmt.Sprintf("+%ds", seconds)
}
