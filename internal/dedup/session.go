package dedup

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/fingerprint"
	"horse.fit/event-pipeline/internal/textnorm"
)

const (
	minNameLength = 3
	// multi-day rows seed a content key per covered day, up to this many days.
	maxSeededRangeDays = 31
)

var (
	ErrInvalidRecord   = errors.New("invalid record")
	ErrDuplicateRecord = errors.New("duplicate record")
)

// nonEventTitles matches promotional or administrative text that extraction
// sometimes returns as a standalone event title. Matched against the normalized name.
var nonEventTitles = regexp.MustCompile(`^(?:` + strings.Join([]string{
	`member discounts?(?: .*)?`,
	`(?:promo|discount) codes?(?: .*)?`,
	`rsvp(?: here| now)?`,
	`register(?: here| now| today)?`,
	`registration`,
	`sign up(?: here| now)?`,
	`(?:get |buy )?tickets?`,
	`apply(?: now| here)?`,
	`learn more`,
	`read more`,
	`see (?:all|more)(?: events)?`,
	`view (?:all|more)(?: events)?`,
	`load more`,
	`subscribe(?: now)?`,
	`sponsored`,
	`advertisement`,
	`tba`,
	`tbd`,
}, "|") + `)$`)

type Kind string

const (
	KindAccepted          Kind = "accepted"
	KindRejectedDuplicate Kind = "duplicate"
	KindRejectedInvalid   Kind = "invalid"
)

// Decision is the outcome of Session.Admit.
type Decision struct {
	Kind Kind
	// Event is the persistence-ready record when Kind is KindAccepted. The store
	// fills ID and CreatedAt.
	Event event.Persisted
	// MatchedKey is the source_id or fingerprint that matched, for duplicates.
	MatchedKey string
	// Reason explains an invalid rejection.
	Reason string
}

func (d Decision) Accepted() bool { return d.Kind == KindAccepted }

func (d Decision) Err() error {
	switch d.Kind {
	case KindRejectedInvalid:
		return fmt.Errorf("%w: %s", ErrInvalidRecord, d.Reason)
	case KindRejectedDuplicate:
		return fmt.Errorf("%w: matched %s", ErrDuplicateRecord, d.MatchedKey)
	default:
		return nil
	}
}

// Origin describes where a candidate was extracted from.
type Origin struct {
	Source    string
	SourceURL string
	Prefix    string
	Status    event.Status
}

// Session is the dedup state of one ingestion run. It is seeded from the store
// once and then updated in memory as records are admitted, so that two copies
// of the same event found in the same run dedupe against each other. A Session
// is not safe for concurrent use.
type Session struct {
	fingerprints map[string]struct{}
	sourceIDs    map[string]struct{}
}

func NewSession(fingerprints, sourceIDs []string) *Session {
	s := &Session{
		fingerprints: make(map[string]struct{}, len(fingerprints)),
		sourceIDs:    make(map[string]struct{}, len(sourceIDs)),
	}
	for _, key := range fingerprints {
		s.fingerprints[key] = struct{}{}
	}
	for _, id := range sourceIDs {
		if id = strings.TrimSpace(id); id != "" {
			s.sourceIDs[id] = struct{}{}
		}
	}
	return s
}

// SeedFrom builds a Session from already persisted events. Rows without a name
// or date contribute only their source_id. Ranged events contribute a content
// key for every day they cover so that a later single-day listing of day two
// is recognized.
func SeedFrom(events []event.Persisted) *Session {
	s := NewSession(nil, nil)
	for _, persisted := range events {
		if id := strings.TrimSpace(persisted.SourceID); id != "" {
			s.sourceIDs[id] = struct{}{}
		}
		if !persisted.Valid() {
			continue
		}
		for _, key := range fingerprint.Compute(persisted.Candidate) {
			s.fingerprints[key] = struct{}{}
		}

		last := persisted.LastDate()
		span := min(last.DaysAfter(persisted.Date), maxSeededRangeDays)
		for day := 1; day <= span; day++ {
			covered := persisted.Candidate
			covered.Date = event.DateOf(persisted.Date.Time().AddDate(0, 0, day))
			for _, key := range fingerprint.Compute(covered).ContentKeys() {
				s.fingerprints[key] = struct{}{}
			}
		}
	}
	return s
}

// Admit decides whether c is new. Checks run in a fixed order and the first
// match wins: validity, source_id, then the fingerprint set in key order.
// Accepted records are added to the session state.
func (s *Session) Admit(c event.Candidate, origin Origin) Decision {
	normalized := c.Normalized()
	if reason := invalidReason(normalized); reason != "" {
		return Decision{Kind: KindRejectedInvalid, Reason: reason}
	}

	sourceID := fingerprint.SourceID(origin.Prefix, normalized)
	if _, exists := s.sourceIDs[sourceID]; exists {
		return Decision{Kind: KindRejectedDuplicate, MatchedKey: sourceID}
	}

	keys := fingerprint.Compute(normalized)
	for _, key := range keys {
		if _, exists := s.fingerprints[key]; exists {
			return Decision{Kind: KindRejectedDuplicate, MatchedKey: key}
		}
	}

	s.sourceIDs[sourceID] = struct{}{}
	for _, key := range keys {
		s.fingerprints[key] = struct{}{}
	}

	status := origin.Status
	if status == "" {
		status = event.StatusPublished
	}
	return Decision{
		Kind: KindAccepted,
		Event: event.Persisted{
			Candidate: normalized,
			Source:    strings.TrimSpace(origin.Source),
			SourceURL: strings.TrimSpace(origin.SourceURL),
			SourceID:  sourceID,
			Status:    status,
		},
	}
}

// Forget drops the source_id and fingerprints of an accepted record the store
// then failed to persist, so a later copy in the same run is admitted again.
// An accepted record shares no key with any other record in the session.
func (s *Session) Forget(record event.Persisted) {
	delete(s.sourceIDs, strings.TrimSpace(record.SourceID))
	if !record.Valid() {
		return
	}
	for _, key := range fingerprint.Compute(record.Candidate) {
		delete(s.fingerprints, key)
	}
}

// Size reports how many fingerprints and source ids the session holds.
func (s *Session) Size() (fingerprints int, sourceIDs int) {
	return len(s.fingerprints), len(s.sourceIDs)
}

func invalidReason(c event.Candidate) string {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return "missing name"
	case c.Date.IsZero():
		return "missing event_date"
	case utf8.RuneCountInString(strings.TrimSpace(c.Name)) < minNameLength:
		return "name too short"
	case nonEventTitles.MatchString(textnorm.Name(c.Name)):
		return "name is not an event title"
	}
	return ""
}
