package event

import (
	"fmt"

	payloadschema "horse.fit/event-pipeline/schema"
)

// Decode turns one recovered JSON object into a normalized Candidate. Objects
// that fail the candidate schema or carry an unparseable event_date are
// rejected with an error; callers count them as invalid records.
func Decode(raw []byte) (Candidate, error) {
	payload, err := payloadschema.ValidateCandidateEvent(raw)
	if err != nil {
		return Candidate{}, err
	}

	date, err := ParseDate(payload.EventDate)
	if err != nil {
		return Candidate{}, fmt.Errorf("event_date: %w", err)
	}

	candidate := Candidate{
		Name:            payload.Name,
		Type:            Type(deref(payload.EventType)),
		Date:            date,
		StartTime:       deref(payload.StartTime),
		EndTime:         deref(payload.EndTime),
		Venue:           deref(payload.Venue),
		City:            deref(payload.City),
		Country:         deref(payload.Country),
		Organizer:       deref(payload.Organizer),
		EventURL:        deref(payload.EventURL),
		RSVPURL:         deref(payload.RSVPURL),
		ImageURL:        deref(payload.ImageURL),
		Description:     deref(payload.Description),
		Tags:            derefAll(payload.Tags),
		BlockchainFocus: derefAll(payload.BlockchainFocus),
	}
	return candidate.Normalized(), nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefAll(values []*string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value != nil {
			out = append(out, *value)
		}
	}
	return out
}
