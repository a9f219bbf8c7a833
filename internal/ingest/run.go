package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"horse.fit/event-pipeline/internal/db"
	"horse.fit/event-pipeline/internal/dedup"
	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/extract"
	"horse.fit/event-pipeline/internal/globaltime"
	"horse.fit/event-pipeline/internal/metrics"
	"horse.fit/event-pipeline/internal/sources"
)

type RunOptions struct {
	Pages     []sources.Page
	BatchSize int
}

// SourceSummary counts record outcomes for one source.
type SourceSummary struct {
	Source       string
	Extracted    int
	Invalid      int
	Duplicate    int
	Inserted     int
	InsertFailed int
}

type FailedPage struct {
	Source string
	URL    string
	Err    string
}

// Summary is the user-visible result of an ingestion run.
type Summary struct {
	Sources     []SourceSummary
	FailedPages []FailedPage
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Totals sums the per-source counts.
func (s Summary) Totals() SourceSummary {
	total := SourceSummary{Source: "total"}
	for _, src := range s.Sources {
		total.Extracted += src.Extracted
		total.Invalid += src.Invalid
		total.Duplicate += src.Duplicate
		total.Inserted += src.Inserted
		total.InsertFailed += src.InsertFailed
	}
	return total
}

func (s *Summary) source(name string) *SourceSummary {
	for i := range s.Sources {
		if s.Sources[i].Source == name {
			return &s.Sources[i]
		}
	}
	s.Sources = append(s.Sources, SourceSummary{Source: name})
	return &s.Sources[len(s.Sources)-1]
}

// Run ingests every page in order with one dedup session seeded from the store.
// A page that cannot be fetched or extracted is recorded in FailedPages and the
// run moves on. Only store access failures and cancellation end the run early.
func (s *Service) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	summary := Summary{StartedAt: globaltime.UTC()}
	if s.fetcher == nil || s.extractor == nil || s.coordinator == nil {
		return summary, fmt.Errorf("ingest service is missing fetcher, extractor or coordinator")
	}
	if len(opts.Pages) == 0 {
		return summary, fmt.Errorf("at least one page is required")
	}

	existing, err := s.store.LoadEvents(ctx)
	if err != nil {
		return summary, fmt.Errorf("seed dedup session: %w", err)
	}
	session := dedup.SeedFrom(existing)
	fingerprints, sourceIDs := session.Size()
	s.logger.Info().
		Int("events", len(existing)).
		Int("fingerprints", fingerprints).
		Int("source_ids", sourceIDs).
		Msg("dedup session seeded")

	for _, page := range opts.Pages {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = globaltime.UTC()
			return summary, err
		}
		if err := s.ingestPage(ctx, page, session, opts.BatchSize, &summary); err != nil {
			summary.FinishedAt = globaltime.UTC()
			return summary, err
		}
	}

	summary.FinishedAt = globaltime.UTC()
	totals := summary.Totals()
	s.logger.Info().
		Int("pages", len(opts.Pages)).
		Int("failed_pages", len(summary.FailedPages)).
		Int("extracted", totals.Extracted).
		Int("invalid", totals.Invalid).
		Int("duplicate", totals.Duplicate).
		Int("inserted", totals.Inserted).
		Int("insert_failed", totals.InsertFailed).
		Dur("took", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("ingest run completed")
	return summary, nil
}

// ingestPage returns an error only when the run must stop.
func (s *Service) ingestPage(ctx context.Context, page sources.Page, session *dedup.Session, batchSize int, summary *Summary) error {
	logger := s.logger.With().Str("source", page.Source).Str("page", page.URL).Logger()

	text, err := s.fetcher.Fetch(ctx, page.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.pageFailed(page, err, summary)
		return nil
	}

	tally := &extract.Tally{}
	candidates, err := s.coordinator.ExtractLongDocument(ctx, text, s.extractor.ExtractFunc(tally))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.pageFailed(page, err, summary)
		return nil
	}

	// Decoded candidates the coordinator dropped repeat an earlier window.
	overlapDuplicates := max(0, tally.Recovered-tally.Invalid-len(candidates))
	extracted := tally.Recovered
	invalid := tally.Invalid
	duplicate := overlapDuplicates

	origin := dedup.Origin{
		Source:    page.Source,
		SourceURL: page.SourceURL,
		Prefix:    page.Prefix,
		Status:    page.Status,
	}
	var accepted []event.Persisted
	for _, candidate := range candidates {
		decision := session.Admit(candidate, origin)
		switch decision.Kind {
		case dedup.KindAccepted:
			accepted = append(accepted, decision.Event)
		case dedup.KindRejectedInvalid:
			invalid++
			logger.Debug().Str("name", candidate.Name).Str("reason", decision.Reason).Msg("record rejected as invalid")
		case dedup.KindRejectedDuplicate:
			duplicate++
			logger.Debug().Str("name", candidate.Name).Str("matched", decision.MatchedKey).Msg("record rejected as duplicate")
		}
	}

	inserted, insertFailed := 0, 0
	if len(accepted) > 0 {
		result, err := s.store.InsertEvents(ctx, accepted, batchSize)
		inserted = result.Inserted
		duplicate += result.Conflicts

		var batchErr *db.BatchInsertError
		switch {
		case errors.As(err, &batchErr):
			insertFailed = len(batchErr.Failures)
			failed := make(map[string]bool, len(batchErr.Failures))
			for _, failure := range batchErr.Failures {
				failed[failure.SourceID] = true
				logger.Warn().Err(failure.Err).Str("source_id", failure.SourceID).Msg("record insert failed")
			}
			for _, record := range accepted {
				if failed[record.SourceID] {
					session.Forget(record)
				}
			}
		case err != nil:
			return fmt.Errorf("insert events for %s: %w", page.URL, err)
		}
	}

	stats := summary.source(page.Source)
	stats.Extracted += extracted
	stats.Invalid += invalid
	stats.Duplicate += duplicate
	stats.Inserted += inserted
	stats.InsertFailed += insertFailed

	s.metrics.AddRecords(page.Source, metrics.OutcomeExtracted, extracted)
	s.metrics.AddRecords(page.Source, metrics.OutcomeInvalid, invalid)
	s.metrics.AddRecords(page.Source, metrics.OutcomeDuplicate, duplicate)
	s.metrics.AddRecords(page.Source, metrics.OutcomeInserted, inserted)
	s.metrics.AddRecords(page.Source, metrics.OutcomeInsertFailed, insertFailed)

	logger.Info().
		Int("windows", tally.Windows).
		Int("extracted", extracted).
		Int("invalid", invalid).
		Int("duplicate", duplicate).
		Int("inserted", inserted).
		Int("insert_failed", insertFailed).
		Msg("page ingested")
	return nil
}

func (s *Service) pageFailed(page sources.Page, err error, summary *Summary) {
	summary.source(page.Source)
	summary.FailedPages = append(summary.FailedPages, FailedPage{
		Source: page.Source,
		URL:    page.URL,
		Err:    err.Error(),
	})
	s.metrics.PageFailed(page.Source)
	s.logger.Warn().
		Err(err).
		Str("source", page.Source).
		Str("page", page.URL).
		Msg("page failed; continuing with next page")
}
