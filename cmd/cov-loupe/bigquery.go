package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/export"
)

var (
	bqProject    string
	bqDataset    string
	collectionID string

	bigqueryCmd = &cobra.Command{
		Use:   "bigquery",
		Short: "Export coverage to BigQuery",
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Ingest per-line coverage of the current resultset",
		Long: `Write one row per source line of every listed file to the coverage_lines
table and one summary row to coverage_snapshots. The dataset and tables are
created when missing. Credentials come from Application Default Credentials.`,
		Example: `  cov-loupe bigquery ingest --project my-project --dataset coverage --collection nightly-42`,
		Args:    cobra.NoArgs,
		RunE:    runIngest,
	}
)

func init() {
	bigqueryCmd.PersistentFlags().StringVar(&bqProject, "project", "", "GCP project (defaults to bigquery.project in the config)")
	bigqueryCmd.PersistentFlags().StringVar(&bqDataset, "dataset", "", "BigQuery dataset (defaults to bigquery.dataset in the config)")
	ingestCmd.Flags().StringVar(&collectionID, "collection", "", "Collection ID stored with every row (generated when empty)")
	bigqueryCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(bigqueryCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	project, dataset := bqProject, bqDataset
	if project == "" {
		project = appCfg.BigQuery.Project
	}
	if dataset == "" {
		dataset = appCfg.BigQuery.Dataset
	}
	if project == "" || dataset == "" {
		return &coverage.ConfigError{Reason: "bigquery project and dataset are required"}
	}
	if collectionID == "" {
		collectionID = uuid.NewString()
	}

	m, err := newModel()
	if err != nil {
		return err
	}
	data, err := m.Data()
	if err != nil {
		return err
	}
	list, err := m.List()
	if err != nil {
		return err
	}
	rows, snap := export.BuildRows(list, data.CoverageMap, m.Relativize, export.Meta{
		IngestionTime: time.Now().UTC(),
		CollectionID:  collectionID,
		Suites:        data.SuiteNames,
	})

	ctx := cmd.Context()
	exp, err := export.New(ctx, project, dataset, export.WithLogf(logger.Info))
	if err != nil {
		return err
	}
	defer exp.Close()
	if err := exp.EnsureTables(ctx); err != nil {
		return err
	}

	logger.Progress("Ingesting %d rows for %d files into %s.%s", len(rows), len(list.Files), project, dataset)
	written, err := exp.Ingest(ctx, rows, snap)
	if err != nil {
		return err
	}
	logger.Success("Ingested %d rows (collection %s, %.2f%% covered)", written, collectionID, snap.CoveragePct)
	return nil
}
