// Package chunk splits documents that are too long for one extraction call into
// overlapping windows and stitches the per-window results back together.
package chunk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/fingerprint"
)

const (
	DefaultSize    = 30000
	DefaultOverlap = 2000
)

// ExtractFunc runs one extraction call over a window of text. label is
// "part k of n" for windowed documents and "full document" otherwise.
type ExtractFunc func(ctx context.Context, text string, label string) ([]event.Candidate, error)

type Coordinator struct {
	size    int
	overlap int
	logger  zerolog.Logger
}

func NewCoordinator(size, overlap int, logger zerolog.Logger) (*Coordinator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be >= 0 and < chunk size (%d)", size)
	}
	return &Coordinator{
		size:    size,
		overlap: overlap,
		logger:  logger,
	}, nil
}

// Windows splits text into windows of at most size runes; window i starts at
// i*(size-overlap). Text that fits in one window comes back as a single window.
func Windows(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	step := size - overlap
	var windows []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows
}

// ExtractLongDocument calls extract once per window, in order, and returns every
// valid record whose content fingerprint was not already produced by an earlier
// window. A failing window is logged and skipped; only when every window fails
// is the last error returned. Cancelling ctx stops before the next window.
func (c *Coordinator) ExtractLongDocument(ctx context.Context, text string, extract ExtractFunc) ([]event.Candidate, error) {
	if extract == nil {
		return nil, fmt.Errorf("extract func is required")
	}

	windows := Windows(text, c.size, c.overlap)
	if len(windows) == 1 {
		records, err := extract(ctx, windows[0], "full document")
		if err != nil {
			return nil, err
		}
		return validOnly(records), nil
	}

	var (
		kept      []event.Candidate
		seen      = make(map[string]struct{})
		lastErr   error
		succeeded int
	)
	for i, window := range windows {
		if err := ctx.Err(); err != nil {
			return kept, err
		}

		label := fmt.Sprintf("part %d of %d", i+1, len(windows))
		records, err := extract(ctx, window, label)
		if err != nil {
			lastErr = err
			c.logger.Warn().
				Err(err).
				Str("window", label).
				Msg("window extraction failed; continuing")
			continue
		}
		succeeded++

		before := len(kept)
		for _, record := range records {
			if !record.Valid() {
				continue
			}
			key := fingerprint.Content(record)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			kept = append(kept, record)
		}

		c.logger.Debug().
			Str("window", label).
			Int("returned", len(records)).
			Int("kept", len(kept)-before).
			Msg("window extracted")
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("all %d windows failed: %w", len(windows), lastErr)
	}
	return kept, nil
}

func validOnly(records []event.Candidate) []event.Candidate {
	out := make([]event.Candidate, 0, len(records))
	for _, record := range records {
		if record.Valid() {
			out = append(out, record)
		}
	}
	return out
}
