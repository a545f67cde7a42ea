// Package export ingests per-line coverage into BigQuery for cross-run
// analysis.
package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// Table names created in the dataset.
const (
	LinesTable     = "coverage_lines"
	SnapshotsTable = "coverage_snapshots"
)

const batchSize = 500

// LineRow is one source line of one file.
type LineRow struct {
	IngestionTime    time.Time `bigquery:"ingestion_time"`
	Fingerprint      string    `bigquery:"fingerprint"`
	CollectionID     string    `bigquery:"collection_id"`
	SourceFilename   string    `bigquery:"source_filename"`
	SourceLine       string    `bigquery:"source_line"`
	SourceLineNumber int       `bigquery:"source_line_number"`
	LineExecutions   int       `bigquery:"line_executions"`
	Stale            string    `bigquery:"stale"`
}

// SnapshotRow summarizes one ingested resultset.
type SnapshotRow struct {
	IngestionTime     time.Time `bigquery:"ingestion_time"`
	Fingerprint       string    `bigquery:"fingerprint"`
	CollectionID      string    `bigquery:"collection_id"`
	CoverageTimestamp time.Time `bigquery:"coverage_timestamp"`
	CoveredLines      int       `bigquery:"covered_lines"`
	TotalLines        int       `bigquery:"total_lines"`
	CoveragePct       float64   `bigquery:"coverage_pct"`
	Suites            []string  `bigquery:"suites"`
}

// Meta identifies an ingestion.
type Meta struct {
	IngestionTime time.Time
	CollectionID  string
	Suites        []string
}

// LinesSchema is the schema of LinesTable.
func LinesSchema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "ingestion_time", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "fingerprint", Type: bigquery.StringFieldType, Required: true},
		{Name: "collection_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "source_filename", Type: bigquery.StringFieldType, Required: true},
		{Name: "source_line", Type: bigquery.StringFieldType},
		{Name: "source_line_number", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "line_executions", Type: bigquery.IntegerFieldType, Required: true},
		{Name: "stale", Type: bigquery.StringFieldType},
	}
}

// SnapshotsSchema is the schema of SnapshotsTable.
func SnapshotsSchema() bigquery.Schema {
	return bigquery.Schema{
		{Name: "ingestion_time", Type: bigquery.TimestampFieldType, Required: true},
		{Name: "fingerprint", Type: bigquery.StringFieldType, Required: true},
		{Name: "collection_id", Type: bigquery.StringFieldType, Required: true},
		{Name: "coverage_timestamp", Type: bigquery.TimestampFieldType},
		{Name: "covered_lines", Type: bigquery.IntegerFieldType},
		{Name: "total_lines", Type: bigquery.IntegerFieldType},
		{Name: "coverage_pct", Type: bigquery.FloatFieldType},
		{Name: "suites", Type: bigquery.StringFieldType, Repeated: true},
	}
}

// BuildRows emits one row per source line of every listed file. Lines the
// coverage does not track carry -1 executions. When the source cannot be
// read the row count follows the coverage array.
func BuildRows(list *model.ListResult, coverageMap map[string]coverage.Entry, rel func(string) string, meta Meta) ([]LineRow, SnapshotRow) {
	var rows []LineRow
	snap := SnapshotRow{
		IngestionTime:     meta.IngestionTime,
		Fingerprint:       list.Fingerprint,
		CollectionID:      meta.CollectionID,
		CoverageTimestamp: time.Unix(list.Timestamp, 0).UTC(),
		Suites:            meta.Suites,
	}
	for _, r := range list.Files {
		snap.CoveredLines += r.Covered
		snap.TotalLines += r.Total

		lines := coverageMap[r.File].Lines
		var source []string
		if data, err := os.ReadFile(r.File); err == nil {
			source = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		}
		total := len(source)
		if total == 0 {
			total = len(lines)
		}
		name := rel(r.File)
		for n := 1; n <= total; n++ {
			row := LineRow{
				IngestionTime:    meta.IngestionTime,
				Fingerprint:      list.Fingerprint,
				CollectionID:     meta.CollectionID,
				SourceFilename:   name,
				SourceLineNumber: n,
				LineExecutions:   coverage.NotExecutable,
				Stale:            string(r.Stale),
			}
			if n <= len(source) {
				row.SourceLine = source[n-1]
			}
			if n <= len(lines) {
				row.LineExecutions = lines[n-1]
			}
			rows = append(rows, row)
		}
	}
	snap.CoveragePct = coverage.Percentage(snap.CoveredLines, snap.TotalLines)
	return rows, snap
}

// Inserter streams rows into a table. *bigquery.Inserter satisfies it.
type Inserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Exporter writes rows into one dataset.
type Exporter struct {
	client    *bigquery.Client
	project   string
	dataset   string
	lines     Inserter
	snapshots Inserter
	logf      func(format string, args ...interface{})
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithInserters replaces the BigQuery inserters.
func WithInserters(lines, snapshots Inserter) Option {
	return func(e *Exporter) {
		e.lines = lines
		e.snapshots = snapshots
	}
}

// WithLogf routes progress messages.
func WithLogf(logf func(format string, args ...interface{})) Option {
	return func(e *Exporter) { e.logf = logf }
}

// New connects to BigQuery unless inserters were supplied.
func New(ctx context.Context, project, dataset string, opts ...Option) (*Exporter, error) {
	e := &Exporter{project: project, dataset: dataset, logf: func(string, ...interface{}) {}}
	for _, opt := range opts {
		opt(e)
	}
	if e.lines != nil && e.snapshots != nil {
		return e, nil
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("create BigQuery client: %w", err)
	}
	e.client = client
	ds := client.Dataset(dataset)
	e.lines = ds.Table(LinesTable).Inserter()
	e.snapshots = ds.Table(SnapshotsTable).Inserter()
	return e, nil
}

// Close releases the client.
func (e *Exporter) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// EnsureTables creates the dataset and tables when they do not exist.
func (e *Exporter) EnsureTables(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	dataset := e.client.Dataset(e.dataset)
	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil {
		if !alreadyExists(err) {
			return fmt.Errorf("create dataset: %w", err)
		}
	} else {
		e.logf("Created dataset %s.%s", e.project, e.dataset)
	}

	tables := []struct {
		name       string
		schema     bigquery.Schema
		clustering []string
	}{
		{LinesTable, LinesSchema(), []string{"fingerprint", "collection_id", "source_filename"}},
		{SnapshotsTable, SnapshotsSchema(), []string{"collection_id", "fingerprint"}},
	}
	for _, t := range tables {
		err := dataset.Table(t.name).Create(ctx, &bigquery.TableMetadata{
			Schema:           t.schema,
			TimePartitioning: &bigquery.TimePartitioning{Field: "ingestion_time"},
			Clustering:       &bigquery.Clustering{Fields: t.clustering},
		})
		if err != nil {
			if !alreadyExists(err) {
				return fmt.Errorf("create %s table: %w", t.name, err)
			}
			continue
		}
		e.logf("Created table %s", t.name)
	}
	return nil
}

// Ingest writes the snapshot row, then the line rows in batches. Failed
// batches are reported and skipped; the returned count covers written rows.
func (e *Exporter) Ingest(ctx context.Context, rows []LineRow, snap SnapshotRow) (int, error) {
	if err := e.snapshots.Put(ctx, &snap); err != nil {
		return 0, fmt.Errorf("insert snapshot row: %w", err)
	}
	written := 0
	var failed []string
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := make([]*LineRow, 0, end-start)
		for j := start; j < end; j++ {
			batch = append(batch, &rows[j])
		}
		if err := e.lines.Put(ctx, batch); err != nil {
			e.logf("WARNING: batch insert failed at offset %d: %v", start, err)
			failed = append(failed, fmt.Sprint(start))
			continue
		}
		written += len(batch)
	}
	if len(failed) > 0 {
		return written, fmt.Errorf("%d of %d batches failed (offsets %s)", len(failed), (len(rows)+batchSize-1)/batchSize, strings.Join(failed, ", "))
	}
	return written, nil
}

func alreadyExists(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusConflict {
		return true
	}
	return strings.Contains(err.Error(), "Already Exists") || strings.Contains(err.Error(), "alreadyExists")
}
