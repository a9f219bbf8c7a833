package db

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"horse.fit/event-pipeline/internal/event"
)

// Event maps the events table. (source, source_id) is unique; it is the
// backstop against two runs inserting the same record concurrently.
type Event struct {
	ID              string     `gorm:"column:id;type:uuid;primaryKey"`
	Name            string     `gorm:"column:name;type:text;not null;check:chk_events_name_present,length(trim(name)) > 0"`
	EventType       string     `gorm:"column:event_type;type:text;not null;default:other"`
	EventDate       time.Time  `gorm:"column:event_date;type:date;not null;index:idx_events_event_date"`
	EndDate         *time.Time `gorm:"column:end_date;type:date"`
	IsMultiDay      bool       `gorm:"column:is_multi_day;not null;default:false"`
	StartTime       *string    `gorm:"column:start_time;type:text"`
	EndTime         *string    `gorm:"column:end_time;type:text"`
	Venue           *string    `gorm:"column:venue;type:text"`
	City            *string    `gorm:"column:city;type:text"`
	Country         *string    `gorm:"column:country;type:text"`
	Organizer       *string    `gorm:"column:organizer;type:text"`
	EventURL        *string    `gorm:"column:event_url;type:text"`
	RSVPURL         *string    `gorm:"column:rsvp_url;type:text"`
	ImageURL        *string    `gorm:"column:image_url;type:text"`
	Tags            []string   `gorm:"column:tags;type:jsonb;serializer:json"`
	BlockchainFocus []string   `gorm:"column:blockchain_focus;type:jsonb;serializer:json"`
	Description     *string    `gorm:"column:description;type:text"`
	Source          string     `gorm:"column:source;type:text;not null;uniqueIndex:idx_events_source_source_id,priority:1"`
	SourceURL       *string    `gorm:"column:source_url;type:text"`
	SourceID        string     `gorm:"column:source_id;type:text;not null;uniqueIndex:idx_events_source_source_id,priority:2"`
	Status          string     `gorm:"column:status;type:text;not null;default:published"`
	CreatedAt       time.Time  `gorm:"column:created_at;not null;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;not null;autoUpdateTime"`
}

func (Event) TableName() string { return "events" }

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(e.ID) == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// eventRow converts an accepted record into its table row.
func eventRow(p event.Persisted) Event {
	row := Event{
		ID:              p.ID,
		Name:            p.Name,
		EventType:       string(event.ParseType(string(p.Type))),
		EventDate:       p.Date.Time(),
		IsMultiDay:      p.MultiDay,
		StartTime:       nullable(p.StartTime),
		EndTime:         nullable(p.EndTime),
		Venue:           nullable(p.Venue),
		City:            nullable(p.City),
		Country:         nullable(p.Country),
		Organizer:       nullable(p.Organizer),
		EventURL:        nullable(p.EventURL),
		RSVPURL:         nullable(p.RSVPURL),
		ImageURL:        nullable(p.ImageURL),
		Tags:            p.Tags,
		BlockchainFocus: p.BlockchainFocus,
		Description:     nullable(p.Description),
		Source:          p.Source,
		SourceURL:       nullable(p.SourceURL),
		SourceID:        p.SourceID,
		Status:          string(p.Status),
		CreatedAt:       p.CreatedAt,
	}
	if !p.EndDate.IsZero() {
		end := p.EndDate.Time()
		row.EndDate = &end
	}
	if row.Status == "" {
		row.Status = string(event.StatusPublished)
	}
	return row
}

// Persisted converts a table row back into the pipeline's record type.
func (e Event) Persisted() event.Persisted {
	out := event.Persisted{
		Candidate: event.Candidate{
			Name:            e.Name,
			Type:            event.ParseType(e.EventType),
			Date:            event.DateOf(e.EventDate),
			StartTime:       deref(e.StartTime),
			EndTime:         deref(e.EndTime),
			Venue:           deref(e.Venue),
			City:            deref(e.City),
			Country:         deref(e.Country),
			Organizer:       deref(e.Organizer),
			EventURL:        deref(e.EventURL),
			RSVPURL:         deref(e.RSVPURL),
			ImageURL:        deref(e.ImageURL),
			Tags:            e.Tags,
			BlockchainFocus: e.BlockchainFocus,
			Description:     deref(e.Description),
		},
		ID:        e.ID,
		Source:    e.Source,
		SourceURL: deref(e.SourceURL),
		SourceID:  e.SourceID,
		Status:    event.Status(e.Status),
		CreatedAt: e.CreatedAt,
		MultiDay:  e.IsMultiDay,
	}
	if e.EndDate != nil {
		out.EndDate = event.DateOf(*e.EndDate)
	}
	return out
}

func nullable(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
