package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/event-pipeline/internal/chunk"
	"horse.fit/event-pipeline/internal/cli"
	"horse.fit/event-pipeline/internal/config"
	"horse.fit/event-pipeline/internal/db"
	"horse.fit/event-pipeline/internal/extract"
	"horse.fit/event-pipeline/internal/globaltime"
	"horse.fit/event-pipeline/internal/ingest"
	"horse.fit/event-pipeline/internal/metrics"
	"horse.fit/event-pipeline/internal/reader"
	"horse.fit/event-pipeline/internal/sources"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Hour, "Command timeout")
	pageURL := fs.String("url", "", "Ingest a single listing page instead of the source catalog")
	source := fs.String("source", "", "Source name for --url (default: URL host)")
	prefix := fs.String("prefix", "", "Source prefix for --url (default: URL host with dashes)")
	sourcesFile := fs.String("sources", "", "Source catalog file (default: SOURCES_FILE)")
	batchSize := fs.Int("batch-size", 0, "Insert batch size (default: INSERT_BATCH_SIZE)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*pageURL) == "" && (strings.TrimSpace(*source) != "" || strings.TrimSpace(*prefix) != "") {
		fmt.Fprintln(os.Stderr, "--source and --prefix require --url")
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}
	if err := cfg.RequireExtraction(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	pages, err := resolvePages(cfg, *pageURL, *source, *prefix, *sourcesFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve pages: %v\n", err)
		return 1
	}
	if *batchSize <= 0 {
		*batchSize = cfg.InsertBatchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ingest command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc, recorder, err := newIngestService(cfg, pool, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ingest: %v\n", err)
		return 1
	}

	started := globaltime.UTC()
	summary, runErr := svc.Run(ctx, ingest.RunOptions{Pages: pages, BatchSize: *batchSize})
	finished := globaltime.UTC()
	recorder.ObserveRun("ingest", finished.Sub(started), finished, runErr == nil)
	pushMetrics(recorder, cfg, "ingest", logger)

	printSummary(summary)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("ingest failed")
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", runErr)
		return 1
	}
	return 0
}

func resolvePages(cfg *config.Config, pageURL, source, prefix, sourcesFile string) ([]sources.Page, error) {
	if strings.TrimSpace(pageURL) != "" {
		page, err := ingest.SinglePage(pageURL, source, prefix)
		if err != nil {
			return nil, err
		}
		return []sources.Page{page}, nil
	}

	path := strings.TrimSpace(sourcesFile)
	if path == "" {
		path = cfg.SourcesFile
	}
	catalog, err := sources.Load(path)
	if err != nil {
		return nil, err
	}
	pages := catalog.Pages()
	if len(pages) == 0 {
		return nil, fmt.Errorf("no enabled sources in %s", path)
	}
	return pages, nil
}

func newIngestService(cfg *config.Config, pool *db.Pool, logger zerolog.Logger) (*ingest.Service, *metrics.Recorder, error) {
	client, err := extract.NewClient(extract.Config{
		BaseURL:       cfg.ExtractBaseURL,
		APIKey:        cfg.ExtractAPIKey,
		Model:         cfg.ExtractModel,
		MaxTokens:     cfg.ExtractMaxTokens,
		Timeout:       cfg.ExtractTimeout,
		RatePerMinute: cfg.ExtractRatePerMinute,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	coordinator, err := chunk.NewCoordinator(cfg.ChunkSize, cfg.ChunkOverlap, logger)
	if err != nil {
		return nil, nil, err
	}

	recorder := metrics.NewRecorder()
	svc, err := ingest.NewService(ingest.Dependencies{
		Store:       pool,
		Fetcher:     reader.NewFetcher(reader.FetchOptions{}),
		Extractor:   extract.NewExtractor(client, logger),
		Coordinator: coordinator,
		Metrics:     recorder,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	return svc, recorder, nil
}

func pushMetrics(recorder *metrics.Recorder, cfg *config.Config, command string, logger zerolog.Logger) {
	if strings.TrimSpace(cfg.PushgatewayURL) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := recorder.Push(ctx, cfg.PushgatewayURL, command); err != nil {
		logger.Warn().Err(err).Msg("metrics push failed")
	}
}

func printSummary(summary ingest.Summary) {
	for _, src := range summary.Sources {
		fmt.Printf("ingest source=%s extracted=%d invalid=%d duplicate=%d inserted=%d insert_failed=%d\n",
			src.Source, src.Extracted, src.Invalid, src.Duplicate, src.Inserted, src.InsertFailed)
	}
	for _, page := range summary.FailedPages {
		fmt.Printf("ingest failed_page source=%s url=%s error=%q\n", page.Source, page.URL, page.Err)
	}
	total := summary.Totals()
	fmt.Printf("ingest total extracted=%d invalid=%d duplicate=%d inserted=%d insert_failed=%d failed_pages=%d\n",
		total.Extracted, total.Invalid, total.Duplicate, total.Inserted, total.InsertFailed, len(summary.FailedPages))
}
