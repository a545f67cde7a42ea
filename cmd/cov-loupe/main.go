package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jupierce/cov-loupe/pkg/config"
	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/datacache"
	"github.com/jupierce/cov-loupe/pkg/log"
	"github.com/jupierce/cov-loupe/pkg/model"
	"github.com/jupierce/cov-loupe/pkg/paths"
	"github.com/jupierce/cov-loupe/pkg/report"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitGeneric  = 1
	exitConfig   = 2
	exitStale    = 3
	exitNotFound = 4
	exitData     = 5
)

var (
	// Global flags
	configPath   string
	rootDir      string
	resultset    string
	trackedGlobs []string
	raiseOnStale bool
	sortOrder    string
	format       string
	outputPath   string
	logFile      string
	verbosity    string

	// Set up by PersistentPreRunE
	appCfg config.AppConfig
	logger *log.Logger

	// One case-sensitivity cache serves both coverage keys and path lookups.
	volumes = paths.NewVolumeCache()
	cache   = datacache.New(datacache.WithCaseDetector(volumes))

	rootCmd = &cobra.Command{
		Use:   "cov-loupe",
		Short: "Inspect test coverage and detect stale coverage data",
		Long: `cov-loupe reads a coverage resultset (SimpleCov .resultset.json or a Go
cover profile) and answers per-file and project-wide coverage questions.

Every answer reports whether the coverage still describes the source on disk:
files edited after the coverage run, deleted files, files whose line count
changed, and tracked files with no coverage are all flagged.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (defaults to <root>/"+config.FileName+")")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "R", ".", "Project root")
	rootCmd.PersistentFlags().StringVarP(&resultset, "resultset", "r", "", "Resultset file or directory (defaults to coverage/.resultset.json under the root)")
	rootCmd.PersistentFlags().StringArrayVarP(&trackedGlobs, "tracked-globs", "g", nil, "Glob of files expected to have coverage (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&raiseOnStale, "raise-on-stale", "S", false, "Fail when coverage is stale")
	rootCmd.PersistentFlags().StringVarP(&sortOrder, "sort-order", "o", string(model.DefaultSortOrder), "Row order by percentage (ascending, descending)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", config.FormatTable, "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "", "Write output to this file instead of stdout")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Diagnostic log file (path, stderr, stdout or off)")
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "Log verbosity (error, info, debug, trace)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &coverage.ConfigError{Reason: err.Error()}
	})
}

// setup merges the config file under the flags that were set explicitly.
func setup(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	path := configPath
	required := path != ""
	if path == "" {
		path = filepath.Join(rootDir, config.FileName)
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return err
	}
	if flags.Changed("root") || cfg.Root == "" {
		cfg.Root = rootDir
	}
	if flags.Changed("resultset") {
		cfg.Resultset = resultset
	}
	if flags.Changed("tracked-globs") {
		cfg.TrackedGlobs = trackedGlobs
	}
	if flags.Changed("raise-on-stale") {
		cfg.RaiseOnStale = raiseOnStale
	}
	if flags.Changed("sort-order") {
		cfg.SortOrder = sortOrder
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("verbosity") {
		cfg.Verbosity = verbosity
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := log.ParseLevel(cfg.Verbosity)
	if err != nil {
		return err
	}
	logger, err = log.Open(level, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	appCfg = cfg
	return nil
}

func modelConfig() model.Config {
	cfg := appCfg.ModelConfig(logger)
	cfg.Normalizer = paths.NewNormalizer(volumes)
	return cfg
}

func newModel() (*model.Model, error) {
	return model.New(modelConfig(), cache)
}

func queryOptions() ([]model.QueryOption, error) {
	order, err := model.ParseSortOrder(appCfg.SortOrder)
	if err != nil {
		return nil, &coverage.ConfigError{Reason: err.Error()}
	}
	return []model.QueryOption{model.WithSortOrder(order)}, nil
}

// emit writes v in the configured format, using table for the table format.
func emit(cmd *cobra.Command, v interface{}, table func(io.Writer) error) error {
	render := table
	switch appCfg.Format {
	case config.FormatJSON:
		render = func(w io.Writer) error { return report.JSON(w, v) }
	case config.FormatYAML:
		render = func(w io.Writer) error { return report.YAML(w, v) }
	}
	if outputPath != "" {
		if err := report.WriteFile(outputPath, render); err != nil {
			return err
		}
		logger.Success("Wrote %s", outputPath)
		return nil
	}
	return render(cmd.OutOrStdout())
}

// exitCode maps error kinds to process exit codes.
func exitCode(err error) int {
	var (
		configErr    *coverage.ConfigError
		staleErr     *coverage.StaleDataError
		projectErr   *coverage.ProjectStaleError
		notFoundErr  *coverage.NotFoundError
		permErr      *coverage.PermissionError
		formatErr    *coverage.FormatError
		coverDataErr *coverage.CoverageDataError
	)
	switch {
	case errors.As(err, &configErr):
		return exitConfig
	case errors.As(err, &staleErr), errors.As(err, &projectErr):
		return exitStale
	case errors.As(err, &notFoundErr), errors.As(err, &permErr):
		return exitNotFound
	case errors.As(err, &formatErr), errors.As(err, &coverDataErr):
		return exitData
	}
	return exitGeneric
}

func userMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		os.Exit(exitCode(err))
	}
}
