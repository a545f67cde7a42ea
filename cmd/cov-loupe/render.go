package main

import (
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jupierce/cov-loupe/pkg/report"
)

var (
	htmlOutput string
	htmlTitle  string

	renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Render an HTML coverage report with annotated sources",
		Long: `Render a self-contained HTML page listing every file in the resultset with
its source annotated by hit counts. Stale files are marked. Files whose
source cannot be read are left out of the page.`,
		Example: `  cov-loupe render --html coverage/report.html`,
		Args:    cobra.NoArgs,
		RunE:    runRender,
	}
)

func init() {
	renderCmd.Flags().StringVar(&htmlOutput, "html", filepath.Join("coverage", "cov-loupe.html"), "Output HTML file, relative to the root unless absolute")
	renderCmd.Flags().StringVar(&htmlTitle, "title", "Coverage Report", "Page title")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	m, err := newModel()
	if err != nil {
		return err
	}
	data, err := m.Data()
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

	page := report.BuildPage(htmlTitle, list, data.CoverageMap, m.Relativize)
	path := htmlOutput
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.Root(), path)
	}
	if err := report.WriteFile(path, func(w io.Writer) error { return report.HTML(w, page) }); err != nil {
		return err
	}
	logger.Success("Wrote %s (%d files, %.2f%%)", path, len(page.Files), page.Percentage)
	return nil
}
