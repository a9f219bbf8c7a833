// Package ingest runs the pipeline end to end: fetch listing pages, extract
// candidates, dedup them against the store and the run so far, and insert what
// is new. It also hosts the merge and historical cleanup passes.
package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/event-pipeline/internal/chunk"
	"horse.fit/event-pipeline/internal/db"
	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/extract"
	"horse.fit/event-pipeline/internal/metrics"
	"horse.fit/event-pipeline/internal/sources"
)

// Store is the persistence boundary. *db.Pool implements it.
type Store interface {
	LoadEvents(ctx context.Context) ([]event.Persisted, error)
	InsertEvents(ctx context.Context, records []event.Persisted, batchSize int) (db.InsertResult, error)
	DeleteEvents(ctx context.Context, ids []string) (int64, error)
	ApplyMerge(ctx context.Context, update db.MergeUpdate) error
}

// PageFetcher returns the readable text of a listing page. *reader.Fetcher
// implements it.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

type Dependencies struct {
	Store       Store
	Fetcher     PageFetcher
	Extractor   *extract.Extractor
	Coordinator *chunk.Coordinator
	Metrics     *metrics.Recorder
}

type Service struct {
	store       Store
	fetcher     PageFetcher
	extractor   *extract.Extractor
	coordinator *chunk.Coordinator
	metrics     *metrics.Recorder
	logger      zerolog.Logger
}

func NewService(deps Dependencies, logger zerolog.Logger) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Service{
		store:       deps.Store,
		fetcher:     deps.Fetcher,
		extractor:   deps.Extractor,
		coordinator: deps.Coordinator,
		metrics:     deps.Metrics,
		logger:      logger,
	}, nil
}

// SinglePage builds the page for single-URL mode. Source defaults to the URL's
// host and prefix to the host with dots replaced by dashes.
func SinglePage(pageURL, source, prefix string) (sources.Page, error) {
	trimmed := strings.TrimSpace(pageURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Hostname() == "" {
		return sources.Page{}, fmt.Errorf("url %q must be an absolute http(s) URL", trimmed)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	source = strings.TrimSpace(source)
	if source == "" {
		source = host
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = strings.ReplaceAll(host, ".", "-")
	}
	return sources.Page{
		Source:    source,
		SourceURL: parsed.Scheme + "://" + parsed.Host,
		URL:       trimmed,
		Prefix:    prefix,
	}, nil
}
