// Package fingerprint computes the identity keys used to recognize the same event
// across sources, runs and spellings.
package fingerprint

import (
	"strings"

	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/textnorm"
)

const (
	urlKeyPrefix     = "url:"
	rsvpKeyPrefix    = "rsvp:"
	venueKeyPrefix   = "venue:"
	maxSourceIDBytes = 200
)

// Set holds the one to four keys of a record, in the order content,
// content_venue, url, rsvp.
type Set []string

func (s Set) Content() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// URLKeys returns the url: and rsvp: keys of the set.
func (s Set) URLKeys() []string {
	var keys []string
	for _, key := range s {
		if strings.HasPrefix(key, urlKeyPrefix) || strings.HasPrefix(key, rsvpKeyPrefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// ContentKeys returns the content and content_venue keys of the set.
func (s Set) ContentKeys() []string {
	var keys []string
	for _, key := range s {
		if !strings.HasPrefix(key, urlKeyPrefix) && !strings.HasPrefix(key, rsvpKeyPrefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Content is "{normalized name}|{event date}|{normalized city}".
func Content(c event.Candidate) string {
	mustBeValid(c)
	return textnorm.Name(c.Name) + "|" + c.Date.String() + "|" + textnorm.Name(c.City)
}

// Compute returns the fingerprint set of a validated record. Calling it with a
// record lacking a name or date is a programming error and panics.
func Compute(c event.Candidate) Set {
	content := Content(c)
	set := Set{content}

	if strings.TrimSpace(c.City) == "" {
		if venue := textnorm.Name(c.Venue); venue != "" {
			set = append(set, textnorm.Name(c.Name)+"|"+c.Date.String()+"|"+venueKeyPrefix+venue)
		}
	}

	eventURL := textnorm.URL(c.EventURL)
	if eventURL != "" {
		set = append(set, urlKeyPrefix+eventURL)
	}
	if rsvpURL := textnorm.URL(c.RSVPURL); rsvpURL != "" && rsvpURL != eventURL {
		set = append(set, rsvpKeyPrefix+rsvpURL)
	}
	return set
}

// SourceID is "{prefix}-{normalized name}-{event date}" with every character
// outside [a-zA-Z0-9-] replaced by "-", truncated to 200 bytes.
func SourceID(prefix string, c event.Candidate) string {
	mustBeValid(c)
	raw := strings.TrimSpace(prefix) + "-" + textnorm.Name(c.Name) + "-" + c.Date.String()

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if isSourceIDRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}

	id := b.String()
	if len(id) > maxSourceIDBytes {
		id = id[:maxSourceIDBytes]
	}
	return id
}

func isSourceIDRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-'
}

func mustBeValid(c event.Candidate) {
	if !c.Valid() {
		panic("fingerprint: record without name or event date")
	}
}
