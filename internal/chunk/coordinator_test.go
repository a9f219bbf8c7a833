package chunk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/event-pipeline/internal/event"
)

func newCoordinator(t *testing.T, size, overlap int) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(size, overlap, zerolog.Nop())
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func TestNewCoordinator_RejectsBadOverlap(t *testing.T) {
	t.Parallel()

	if _, err := NewCoordinator(10, 10, zerolog.Nop()); err == nil {
		t.Fatalf("expected overlap == size to be rejected")
	}
	if _, err := NewCoordinator(0, 0, zerolog.Nop()); err == nil {
		t.Fatalf("expected zero size to be rejected")
	}
}

func TestWindows(t *testing.T) {
	t.Parallel()

	got := Windows("abcdefghij", 4, 1)
	want := []string{"abcd", "defg", "ghij"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected windows: %v", got)
	}

	if got := Windows("abcdefghijk", 4, 1); got[len(got)-1] != "jk" {
		t.Fatalf("expected short final window, got %v", got)
	}
	if got := Windows("ñandú", 5, 1); len(got) != 1 {
		t.Fatalf("expected rune-length text to fit one window, got %v", got)
	}
}

func TestExtractLongDocument_SingleWindowFiltersInvalid(t *testing.T) {
	t.Parallel()

	var labels []string
	extract := func(_ context.Context, text, label string) ([]event.Candidate, error) {
		labels = append(labels, label)
		return []event.Candidate{
			{Name: "ETHDenver", Date: event.NewDate(2026, time.February, 23)},
			{Name: "No Date"},
		}, nil
	}

	records, err := newCoordinator(t, 100, 10).ExtractLongDocument(context.Background(), "short", extract)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(records) != 1 || records[0].Name != "ETHDenver" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if len(labels) != 1 || labels[0] != "full document" {
		t.Fatalf("unexpected labels: %v", labels)
	}
}

func TestExtractLongDocument_BoundaryDuplicateReturnedOnce(t *testing.T) {
	t.Parallel()

	shared := event.Candidate{Name: "Camp BUIDL", Date: event.NewDate(2026, time.February, 14), City: "Denver"}
	text := strings.Repeat("x", 15)

	var labels []string
	extract := func(_ context.Context, _ string, label string) ([]event.Candidate, error) {
		labels = append(labels, label)
		switch label {
		case "part 1 of 2":
			return []event.Candidate{
				{Name: "ETHDenver", Date: event.NewDate(2026, time.February, 23), City: "Denver"},
				shared,
			}, nil
		default:
			renamed := shared
			renamed.Name = "camp buidl!"
			return []event.Candidate{
				renamed,
				{Name: "Camp BUIDL", Date: event.NewDate(2026, time.February, 14), City: "Boulder"},
			}, nil
		}
	}

	records, err := newCoordinator(t, 10, 5).ExtractLongDocument(context.Background(), text, extract)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if strings.Join(labels, ",") != "part 1 of 2,part 2 of 2" {
		t.Fatalf("unexpected labels: %v", labels)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(records), records)
	}
	if records[1].Name != "Camp BUIDL" || records[2].City != "Boulder" {
		t.Fatalf("unexpected record order: %+v", records)
	}
}

func TestExtractLongDocument_PartialFailureContinues(t *testing.T) {
	t.Parallel()

	extract := func(_ context.Context, _ string, label string) ([]event.Candidate, error) {
		if label == "part 1 of 3" {
			return nil, errors.New("upstream timeout")
		}
		return []event.Candidate{{Name: "Event " + label, Date: event.NewDate(2026, time.March, 1)}}, nil
	}

	records, err := newCoordinator(t, 4, 1).ExtractLongDocument(context.Background(), "abcdefghij", extract)
	if err != nil {
		t.Fatalf("expected partial failure to be tolerated, got %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected records from the two surviving windows, got %+v", records)
	}
}

func TestExtractLongDocument_AllWindowsFail(t *testing.T) {
	t.Parallel()

	calls := 0
	lastErr := errors.New("window 3 failed")
	extract := func(_ context.Context, _ string, label string) ([]event.Candidate, error) {
		calls++
		if label == "part 3 of 3" {
			return nil, lastErr
		}
		return nil, errors.New("earlier failure")
	}

	_, err := newCoordinator(t, 4, 1).ExtractLongDocument(context.Background(), "abcdefghij", extract)
	if !errors.Is(err, lastErr) {
		t.Fatalf("expected last window error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected every window to be attempted, got %d calls", calls)
	}
}

func TestExtractLongDocument_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	extract := func(_ context.Context, _ string, _ string) ([]event.Candidate, error) {
		calls++
		cancel()
		return []event.Candidate{{Name: "First Window", Date: event.NewDate(2026, time.March, 1)}}, nil
	}

	records, err := newCoordinator(t, 4, 1).ExtractLongDocument(ctx, "abcdefghij", extract)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 || len(records) != 1 {
		t.Fatalf("expected to stop after the first window, calls=%d records=%d", calls, len(records))
	}
}
