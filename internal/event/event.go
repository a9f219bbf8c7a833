// Package event holds the record types that flow through the ingestion pipeline:
// Candidate (one extracted record, never outlives a run) and Persisted (a stored
// event as read back for dedup seeding and the merge pass).
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Type is the event category. Unrecognized values map to TypeOther.
type Type string

const (
	TypeConference Type = "conference"
	TypeHackathon  Type = "hackathon"
	TypeMeetup     Type = "meetup"
	TypeWorkshop   Type = "workshop"
	TypeSummit     Type = "summit"
	TypeParty      Type = "party"
	TypeNetworking Type = "networking"
	TypeOther      Type = "other"
)

var knownTypes = map[Type]struct{}{
	TypeConference: {},
	TypeHackathon:  {},
	TypeMeetup:     {},
	TypeWorkshop:   {},
	TypeSummit:     {},
	TypeParty:      {},
	TypeNetworking: {},
	TypeOther:      {},
}

func ParseType(raw string) Type {
	candidate := Type(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownTypes[candidate]; ok {
		return candidate
	}
	return TypeOther
}

// Status is the publication state of a persisted event.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Date is a calendar date. The zero value means "no date".
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf keeps only the calendar part of t, as seen in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate accepts ISO dates, RFC3339 timestamps and the looser formats models
// tend to emit ("Feb 23, 2026", "2026/02/23").
func ParseDate(raw string) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Date{}, fmt.Errorf("date is empty")
	}
	if t, err := time.Parse(time.DateOnly, trimmed); err == nil {
		return DateOf(t), nil
	}
	t, err := dateparse.ParseIn(trimmed, time.UTC)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", trimmed, err)
	}
	return DateOf(t), nil
}

func MustParseDate(raw string) Date {
	d, err := ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Time() time.Time { return d.t }

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

func (d Date) After(other Date) bool { return d.t.After(other.t) }

func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// DaysAfter returns the whole number of days from other to d.
func (d Date) DaysAfter(other Date) int {
	return int(d.t.Sub(other.t).Hours() / 24)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(time.DateOnly)
}

// Candidate is one event record produced by an extraction call. Optional text
// fields use "" for absent.
type Candidate struct {
	Name            string
	Type            Type
	Date            Date
	StartTime       string
	EndTime         string
	Venue           string
	City            string
	Country         string
	Organizer       string
	EventURL        string
	RSVPURL         string
	ImageURL        string
	Tags            []string
	BlockchainFocus []string
	Description     string
}

// Valid reports whether the record carries both required fields. Invalid records
// must never reach persistence.
func (c Candidate) Valid() bool {
	return strings.TrimSpace(c.Name) != "" && !c.Date.IsZero()
}

// Normalized returns a copy with every text field trimmed, the type mapped onto
// the enum, and list fields cleaned of blanks and case-insensitive repeats.
func (c Candidate) Normalized() Candidate {
	out := c
	out.Name = strings.TrimSpace(c.Name)
	out.Type = ParseType(string(c.Type))
	out.StartTime = strings.TrimSpace(c.StartTime)
	out.EndTime = strings.TrimSpace(c.EndTime)
	out.Venue = strings.TrimSpace(c.Venue)
	out.City = strings.TrimSpace(c.City)
	out.Country = strings.TrimSpace(c.Country)
	out.Organizer = strings.TrimSpace(c.Organizer)
	out.EventURL = strings.TrimSpace(c.EventURL)
	out.RSVPURL = strings.TrimSpace(c.RSVPURL)
	out.ImageURL = strings.TrimSpace(c.ImageURL)
	out.Description = strings.TrimSpace(c.Description)
	out.Tags = cleanList(c.Tags)
	out.BlockchainFocus = cleanList(c.BlockchainFocus)
	return out
}

// Persisted is a stored event. ID and CreatedAt are owned by the store; EndDate
// and MultiDay are only set by the merge pass.
type Persisted struct {
	Candidate

	ID        string
	Source    string
	SourceURL string
	SourceID  string
	Status    Status
	CreatedAt time.Time
	EndDate   Date
	MultiDay  bool
}

// LastDate is EndDate for ranged events and Date otherwise.
func (p Persisted) LastDate() Date {
	if !p.EndDate.IsZero() && p.EndDate.After(p.Date) {
		return p.EndDate
	}
	return p.Date
}

func cleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
