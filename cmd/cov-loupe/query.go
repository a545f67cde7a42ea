package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jupierce/cov-loupe/pkg/model"
	"github.com/jupierce/cov-loupe/pkg/report"
)

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List coverage for every file",
		Long: `List coverage for every file in the resultset, sorted by percentage.

Files whose coverage no longer matches the source are marked in the Stale
column. With --raise-on-stale any staleness fails the command instead.`,
		Example: `  # Worst covered files first
  cov-loupe list --sort-order ascending

  # Only application code, failing if coverage is stale
  cov-loupe list -g 'lib/**/*.rb' --raise-on-stale

  # Machine readable
  cov-loupe list --format json`,
		Args: cobra.NoArgs,
		RunE: runList,
	}

	summaryCmd = &cobra.Command{
		Use:   "summary <file>",
		Short: "Show covered/total/percentage for one file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSummary,
	}

	rawCmd = &cobra.Command{
		Use:   "raw <file>",
		Short: "Show the raw per-line hit counts for one file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRaw,
	}

	uncoveredCmd = &cobra.Command{
		Use:   "uncovered <file>",
		Short: "Show the executable lines of one file that were never hit",
		Args:  cobra.ExactArgs(1),
		RunE:  runUncovered,
	}

	detailedCmd = &cobra.Command{
		Use:   "detailed <file>",
		Short: "Show hits for every executable line of one file",
		Args:  cobra.ExactArgs(1),
		RunE:  runDetailed,
	}

	totalsCmd = &cobra.Command{
		Use:   "totals",
		Short: "Show project-wide line and file totals",
		Args:  cobra.NoArgs,
		RunE:  runTotals,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return emit(cmd, map[string]string{"version": version}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "cov-loupe %s\n", version)
				return err
			})
		},
	}
)

func init() {
	rootCmd.AddCommand(listCmd, summaryCmd, rawCmd, uncoveredCmd, detailedCmd, totalsCmd, versionCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	opts, err := queryOptions()
	if err != nil {
		return err
	}
	list, err := m.List(opts...)
	if err != nil {
		return err
	}
	if msg := report.StaleMessage(list); msg != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), msg)
	}
	return emit(cmd, relativeList(m, list), func(w io.Writer) error {
		return report.Table(w, list, m.Relativize)
	})
}

// relativeList returns a copy of list with root-relative file names.
func relativeList(m *model.Model, list *model.ListResult) *model.ListResult {
	out := *list
	out.Files = make([]model.Row, len(list.Files))
	for i, r := range list.Files {
		r.File = m.Relativize(r.File)
		out.Files[i] = r
	}
	out.SkippedFiles = append(out.SkippedFiles[:0:0], list.SkippedFiles...)
	for i := range out.SkippedFiles {
		out.SkippedFiles[i].File = m.Relativize(out.SkippedFiles[i].File)
	}
	return &out
}

func runSummary(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	s, err := m.SummaryFor(args[0])
	if err != nil {
		return err
	}
	s.File = m.Relativize(s.File)
	return emit(cmd, s, func(w io.Writer) error { return report.SummaryLine(w, s, identity) })
}

func runRaw(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	r, err := m.RawFor(args[0])
	if err != nil {
		return err
	}
	r.File = m.Relativize(r.File)
	return emit(cmd, r, func(w io.Writer) error { return report.YAML(w, r) })
}

func runUncovered(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	u, err := m.UncoveredFor(args[0])
	if err != nil {
		return err
	}
	u.File = m.Relativize(u.File)
	return emit(cmd, u, func(w io.Writer) error { return report.UncoveredLine(w, u, identity) })
}

func runDetailed(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	d, err := m.DetailedFor(args[0])
	if err != nil {
		return err
	}
	d.File = m.Relativize(d.File)
	return emit(cmd, d, func(w io.Writer) error { return report.FileTable(w, d, identity) })
}

func runTotals(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	totals, err := m.ProjectTotals()
	if err != nil {
		return err
	}
	return emit(cmd, totals, func(w io.Writer) error { return report.TotalsTable(w, totals) })
}

func identity(s string) string { return s }
