package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jupierce/cov-loupe/pkg/mcpserver"
	"github.com/jupierce/cov-loupe/pkg/watch"
)

var (
	metricsAddr string
	noWatch     bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve coverage queries as MCP tools over stdio",
		Long: `Run an MCP server on stdin/stdout. Every tool call reads the current
resultset through a shared cache, so coverage regenerated while the server
runs is picked up on the next call.

The resultset is watched and reloaded in the background after each change.
Console logging goes to stderr; stdout carries only protocol messages.`,
		Example: `  # Serve the project in the current directory
  cov-loupe serve

  # Expose cache metrics for scraping
  cov-loupe serve --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for Prometheus /metrics (disabled when empty)")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the resultset for changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.SetOutput(os.Stderr, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed: %v", err)
			}
		}()
		defer srv.Close()
		logger.Info("Serving metrics on http://%s/metrics", metricsAddr)
	}

	m, err := newModel()
	if err != nil {
		logger.Warning("%s", userMessage(err))
	}
	if m != nil && !noWatch {
		reload := func() {
			if _, err := m.Data(); err != nil {
				logger.Warning("Resultset changed but could not be loaded: %v", err)
				return
			}
			logger.Debug("Reloaded %s", m.ResultsetPath())
		}
		w, err := watch.New(m.ResultsetPath(), reload, watch.WithLogger(logger))
		if err != nil {
			logger.Warning("Not watching %s: %v", m.ResultsetPath(), err)
		} else {
			defer w.Close()
			go w.Run(ctx)
		}
	}

	factory := &mcpserver.Factory{Defaults: modelConfig(), Cache: cache}
	s := mcpserver.New(factory, version)

	logger.Info("Serving coverage for %s over stdio", appCfg.Root)
	errCh := make(chan error, 1)
	go func() { errCh <- server.ServeStdio(s) }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
