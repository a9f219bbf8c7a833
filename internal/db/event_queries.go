package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/globaltime"
)

const (
	DefaultInsertBatchSize = 50
	deleteBatchSize        = 500
)

// seedColumns are the columns dedup seeding, cleanup and merge read.
var seedColumns = []string{
	"id", "name", "event_type", "event_date", "end_date", "is_multi_day",
	"venue", "city", "event_url", "rsvp_url",
	"source", "source_url", "source_id", "status", "created_at",
}

// RowFailure is one record the store rejected during the per-row fallback.
type RowFailure struct {
	Source   string
	SourceID string
	Err      error
}

// BatchInsertError reports records that could not be inserted even one at a
// time. Records not listed were inserted or already present.
type BatchInsertError struct {
	BatchErr error
	Failures []RowFailure
}

func (e *BatchInsertError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s/%s: %v", failure.Source, failure.SourceID, failure.Err))
	}
	return fmt.Sprintf("insert events: %d record(s) failed after batch error (%v): %s",
		len(e.Failures), e.BatchErr, strings.Join(parts, "; "))
}

func (e *BatchInsertError) Unwrap() error {
	return e.BatchErr
}

// InsertResult counts the outcome of InsertEvents.
type InsertResult struct {
	Inserted int
	// Conflicts are records whose (source, source_id) already existed.
	Conflicts int
}

// LoadEvents reads every stored event, oldest first.
func (p *Pool) LoadEvents(ctx context.Context) ([]event.Persisted, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}

	var rows []Event
	err := p.gdb.WithContext(ctx).
		Model(&Event{}).
		Select(seedColumns).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	out := make([]event.Persisted, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Persisted())
	}
	return out, nil
}

// InsertEvents inserts records in batches. Rows that conflict on (source,
// source_id) are skipped. When a batch fails, its rows are retried one at a
// time so a single bad record cannot drop the rest; those that still fail are
// reported in a *BatchInsertError alongside the counts.
func (p *Pool) InsertEvents(ctx context.Context, records []event.Persisted, batchSize int) (InsertResult, error) {
	if err := p.ready(); err != nil {
		return InsertResult{}, err
	}
	if batchSize <= 0 {
		batchSize = DefaultInsertBatchSize
	}

	var (
		result   InsertResult
		batchErr *BatchInsertError
	)
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		rows := make([]Event, 0, end-start)
		for _, record := range records[start:end] {
			rows = append(rows, eventRow(record))
		}

		res := p.gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows)
		if res.Error == nil {
			result.Inserted += int(res.RowsAffected)
			result.Conflicts += len(rows) - int(res.RowsAffected)
			continue
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("insert events: %w", ctx.Err())
		}

		if batchErr == nil {
			batchErr = &BatchInsertError{BatchErr: res.Error}
		}
		for _, record := range records[start:end] {
			row := eventRow(record)
			single := p.gdb.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			switch {
			case single.Error != nil:
				batchErr.Failures = append(batchErr.Failures, RowFailure{
					Source:   record.Source,
					SourceID: record.SourceID,
					Err:      single.Error,
				})
			case single.RowsAffected == 0:
				result.Conflicts++
			default:
				result.Inserted++
			}
		}
	}

	if batchErr != nil && len(batchErr.Failures) > 0 {
		return result, batchErr
	}
	return result, nil
}

// DeleteEvents removes events by id and returns how many rows went away.
func (p *Pool) DeleteEvents(ctx context.Context, ids []string) (int64, error) {
	if err := p.ready(); err != nil {
		return 0, err
	}

	cleaned := cleanIDs(ids)
	if len(cleaned) == 0 {
		return 0, nil
	}

	var deleted int64
	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(cleaned); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(cleaned))
			res := tx.Where("id IN ?", cleaned[start:end]).Delete(&Event{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return deleted, nil
}

// MergeUpdate rewrites one kept event into a ranged record and removes the rows
// it absorbed.
type MergeUpdate struct {
	KeepID      string
	StartDate   event.Date
	EndDate     event.Date
	AbsorbedIDs []string
}

// ApplyMerge applies one merge group in a single transaction.
func (p *Pool) ApplyMerge(ctx context.Context, update MergeUpdate) error {
	if err := p.ready(); err != nil {
		return err
	}

	keepID := strings.TrimSpace(update.KeepID)
	if keepID == "" {
		return fmt.Errorf("keep id is required")
	}
	if update.StartDate.IsZero() || update.EndDate.IsZero() || update.EndDate.Before(update.StartDate) {
		return fmt.Errorf("merge range %s..%s is invalid", update.StartDate, update.EndDate)
	}
	absorbed := cleanIDs(update.AbsorbedIDs)
	for _, id := range absorbed {
		if id == keepID {
			return fmt.Errorf("kept event %s cannot also be absorbed", keepID)
		}
	}

	endDate := update.EndDate.Time()
	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Event{}).
			Where("id = ?", keepID).
			Updates(map[string]any{
				"event_date":   update.StartDate.Time(),
				"end_date":     &endDate,
				"is_multi_day": true,
				"updated_at":   globaltime.UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("update kept event: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("kept event %s: %w", keepID, gorm.ErrRecordNotFound)
		}

		if len(absorbed) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", absorbed).Delete(&Event{}).Error; err != nil {
			return fmt.Errorf("delete absorbed events: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply merge: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means a referenced event does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// CountEvents returns the number of stored events created at or after since.
// A zero since counts everything.
func (p *Pool) CountEvents(ctx context.Context, since time.Time) (int64, error) {
	if err := p.ready(); err != nil {
		return 0, err
	}
	query := p.gdb.WithContext(ctx).Model(&Event{})
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since.UTC())
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

func cleanIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
