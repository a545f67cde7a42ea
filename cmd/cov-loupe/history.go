package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jupierce/cov-loupe/pkg/history"
	"github.com/jupierce/cov-loupe/pkg/report"
)

var (
	historyLimit int
	historyFile  string

	recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Record the current coverage in the history database",
		Long: `Store a snapshot of the current resultset in the SQLite history database.

Snapshots are keyed by the resultset fingerprint, so recording the same
resultset twice is a no-op.`,
		Args: cobra.NoArgs,
		RunE: runRecord,
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recorded coverage snapshots",
		Example: `  # Last ten snapshots
  cov-loupe history --limit 10

  # Coverage trend for one file
  cov-loupe history --file lib/foo.rb`,
		Args: cobra.NoArgs,
		RunE: runHistory,
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of snapshots (0 for all)")
	historyCmd.Flags().StringVar(&historyFile, "file", "", "Show the trend of one file instead of project snapshots")
	rootCmd.AddCommand(recordCmd, historyCmd)
}

func runRecord(cmd *cobra.Command, args []string) error {
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
	snap := history.FromList(list, data.SuiteNames, m.Relativize, time.Now())

	store, err := history.Open(appCfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	added, err := store.Record(cmd.Context(), snap)
	if err != nil {
		return err
	}
	if added {
		logger.Success("Recorded %s (%.2f%%, %d files) in %s", report.ShortFingerprint(snap.Fingerprint), snap.Percentage, snap.FilesTotal, store.Path())
	} else {
		logger.Progress("Snapshot %s already recorded", report.ShortFingerprint(snap.Fingerprint))
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(appCfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	if historyFile != "" {
		points, err := store.FileTrend(cmd.Context(), historyFile, historyLimit)
		if err != nil {
			return err
		}
		return emit(cmd, points, func(w io.Writer) error { return report.TrendLines(w, historyFile, points) })
	}

	snaps, err := store.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return emit(cmd, snaps, func(w io.Writer) error { return report.HistoryTable(w, snaps) })
}
