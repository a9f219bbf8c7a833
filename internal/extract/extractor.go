package extract

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"horse.fit/event-pipeline/internal/chunk"
	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/recovery"
)

// Caller is the raw extraction call. *Client implements it.
type Caller interface {
	Extract(ctx context.Context, document string, label string) (string, error)
}

// Tally counts what the extraction of one page produced before dedup.
type Tally struct {
	Windows       int
	Recovered     int
	Invalid       int
	ParseFailures int
}

// Extractor turns raw extraction calls into decoded candidates.
type Extractor struct {
	caller Caller
	logger zerolog.Logger
}

func NewExtractor(caller Caller, logger zerolog.Logger) *Extractor {
	return &Extractor{caller: caller, logger: logger}
}

// ExtractFunc returns a chunk.ExtractFunc that calls the collaborator, recovers
// the event array from its text and decodes each object. Objects that fail
// decoding are counted as invalid. A window whose text yields no recoverable
// array contributes zero records and is not treated as a failed call.
func (e *Extractor) ExtractFunc(tally *Tally) chunk.ExtractFunc {
	if tally == nil {
		tally = &Tally{}
	}
	return func(ctx context.Context, text string, label string) ([]event.Candidate, error) {
		tally.Windows++

		raw, err := e.caller.Extract(ctx, text, label)
		if err != nil {
			return nil, err
		}

		objects, err := recovery.ParseEventArray(raw)
		if err != nil {
			var parseErr *recovery.ParseError
			if !errors.As(err, &parseErr) {
				return nil, err
			}
			tally.ParseFailures++
			e.logger.Warn().
				Err(err).
				Str("window", label).
				Int("response_bytes", len(raw)).
				Msg("no events recoverable from extraction response")
			return nil, nil
		}
		tally.Recovered += len(objects)

		candidates := make([]event.Candidate, 0, len(objects))
		for _, object := range objects {
			candidate, err := event.Decode(object)
			if err != nil {
				tally.Invalid++
				e.logger.Debug().
					Err(err).
					Str("window", label).
					Msg("dropping undecodable event object")
				continue
			}
			candidates = append(candidates, candidate)
		}
		return candidates, nil
	}
}
