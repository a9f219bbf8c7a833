package ingest

import (
	"context"
	"fmt"

	"horse.fit/event-pipeline/internal/db"
	"horse.fit/event-pipeline/internal/dedup"
	"horse.fit/event-pipeline/internal/merge"
)

type MergeOptions struct {
	// MaxDaysApart of zero merges same-day listings only; negative means
	// merge.DefaultMaxDaysApart.
	MaxDaysApart int
	// Apply writes the merges. Without it the pass only reports.
	Apply bool
}

type MergeReport struct {
	Groups   []merge.Group
	Applied  int
	Absorbed int
	Failed   int
	DryRun   bool
}

// Merge collapses per-day listings of multi-day events into ranged records.
// Each group is written in its own transaction; a failing group is logged and
// the rest still apply.
func (s *Service) Merge(ctx context.Context, opts MergeOptions) (MergeReport, error) {
	events, err := s.store.LoadEvents(ctx)
	if err != nil {
		return MergeReport{}, fmt.Errorf("load events for merge: %w", err)
	}

	groups := merge.FindGroups(events, opts.MaxDaysApart)
	report := MergeReport{Groups: groups, DryRun: !opts.Apply}
	for _, group := range groups {
		s.logger.Info().
			Str("keep_id", group.Keep.ID).
			Str("name", group.Keep.Name).
			Str("start_date", group.StartDate.String()).
			Str("end_date", group.EndDate.String()).
			Strs("absorbed_ids", group.AbsorbedIDs()).
			Bool("dry_run", report.DryRun).
			Msg("merge group")
	}
	if !opts.Apply {
		return report, nil
	}

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := s.store.ApplyMerge(ctx, db.MergeUpdate{
			KeepID:      group.Keep.ID,
			StartDate:   group.StartDate,
			EndDate:     group.EndDate,
			AbsorbedIDs: group.AbsorbedIDs(),
		})
		if err != nil {
			report.Failed++
			s.logger.Warn().Err(err).Str("keep_id", group.Keep.ID).Msg("merge group failed")
			continue
		}
		report.Applied++
		report.Absorbed += len(group.Absorbed)
	}
	return report, nil
}

type CleanupOptions struct {
	// Apply deletes the duplicates. Without it the pass only reports.
	Apply bool
}

type CleanupReport struct {
	Groups  []dedup.DuplicateGroup
	Planned int
	Deleted int64
	DryRun  bool
}

// Cleanup finds duplicates already in the store and, when applied, deletes
// every record except the earliest-created one of each group.
func (s *Service) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupReport, error) {
	events, err := s.store.LoadEvents(ctx)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("load events for cleanup: %w", err)
	}

	groups := dedup.FindDuplicates(events)
	ids := dedup.RemovalIDs(groups)
	report := CleanupReport{Groups: groups, Planned: len(ids), DryRun: !opts.Apply}
	for _, group := range groups {
		for _, removal := range group.Remove {
			s.logger.Info().
				Str("keep_id", group.Keep.ID).
				Str("remove_id", removal.Event.ID).
				Str("signal", removal.Signal).
				Str("matched", removal.MatchedKey).
				Bool("dry_run", report.DryRun).
				Msg("duplicate found")
		}
	}
	if !opts.Apply || len(ids) == 0 {
		return report, nil
	}

	deleted, err := s.store.DeleteEvents(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("delete duplicates: %w", err)
	}
	report.Deleted = deleted
	return report, nil
}
