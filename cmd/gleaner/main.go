package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/use-agent/gleaner/browser"
	"github.com/use-agent/gleaner/config"
	"github.com/use-agent/gleaner/crawler"
	"github.com/use-agent/gleaner/export"
	"github.com/use-agent/gleaner/fetch"
	"github.com/use-agent/gleaner/scheduler"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		site     string
		outPath  string
		format   string
		maxPages int
	)

	cmd := &cobra.Command{
		Use:           "gleaner",
		Short:         "Config-driven listing-site crawler",
		Long:          "gleaner crawls listing sites described by declarative site descriptors,\nfollowing pagination and detail links and emitting one record per listing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			initLogger(cfg.Log)
			if maxPages > 0 {
				cfg.Crawl.MaxPages = maxPages
			}
			return run(cmd.Context(), cfg, site, outPath, format)
		},
	}

	cmd.Flags().StringVarP(&site, "site", "s", "", "site name or descriptor path (required)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "-", "output file, or - for stdout")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: jsonl or csv (default: by file extension, else jsonl)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "cap on listing pages per run (0 = unbounded)")
	_ = cmd.MarkFlagRequired("site")

	return cmd
}

func run(parent context.Context, cfg *config.Config, site, outPath, format string) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	desc, err := config.LoadSite(cfg.Crawl.DescriptorDir, site)
	if err != nil {
		slog.Error("cannot load site descriptor", "site", site, "error", err)
		return err
	}
	slog.Info("gleaner starting",
		"site", site,
		"start_urls", len(desc.ResolvedStartURLs()),
		"max_pages", cfg.Crawl.MaxPages,
	)

	mgr := browser.NewManager(browser.NewRodFactory(cfg.Browser))
	dispatcher := fetch.NewDispatcher(mgr, fetch.Options{
		HTTPTimeout:  cfg.Crawl.HTTPTimeout,
		PollAttempts: cfg.Crawl.PollAttempts,
		PollInterval: cfg.Crawl.PollInterval,
	})
	defer dispatcher.Close()

	sched := scheduler.New(
		crawler.New(desc, cfg.Crawl.RenderTimeout),
		dispatcher,
		nil, // sink attached below, it needs the run ID
		scheduler.Options{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			MaxPages:          cfg.Crawl.MaxPages,
		},
	)

	sink, err := buildSink(cfg, outPath, format, sched.RunID())
	if err != nil {
		slog.Error("cannot open output", "out", outPath, "error", err)
		return err
	}
	sched.SetSink(sink)

	runErr := sched.Run(ctx)
	if closeErr := sink.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		slog.Error("crawl failed", "error", runErr)
		return runErr
	}
	slog.Info("gleaner stopped")
	return nil
}

// buildSink opens the record destinations: a file or stdout in the
// requested format, plus the webhook sink when configured.
func buildSink(cfg *config.Config, outPath, format, runID string) (export.Sink, error) {
	var w io.Writer = os.Stdout
	if outPath != "" && outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return nil, err
		}
		w = f
	}

	if format == "" {
		switch strings.ToLower(filepath.Ext(outPath)) {
		case ".csv":
			format = "csv"
		default:
			format = "jsonl"
		}
	}

	var file export.Sink
	switch format {
	case "jsonl":
		file = export.NewJSONLSink(w)
	case "csv":
		file = export.NewCSVSink(w)
	default:
		return nil, fmt.Errorf("unknown output format %q (want jsonl or csv)", format)
	}

	sinks := export.Multi{file}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, export.NewWebhookSink(cfg.Webhook.URL, cfg.Webhook.Secret, runID, cfg.Webhook.Timeout))
	}
	return sinks, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
