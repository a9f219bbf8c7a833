package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed candidate_event.schema.json
var candidateEventSchemaJSON string

// CandidateEvent is the loosely typed shape of one object returned by the
// extraction call, before trimming and enum/date normalization.
type CandidateEvent struct {
	Name            string    `json:"name"`
	EventType       *string   `json:"event_type,omitempty"`
	EventDate       string    `json:"event_date"`
	StartTime       *string   `json:"start_time,omitempty"`
	EndTime         *string   `json:"end_time,omitempty"`
	Venue           *string   `json:"venue,omitempty"`
	City            *string   `json:"city,omitempty"`
	Country         *string   `json:"country,omitempty"`
	Organizer       *string   `json:"organizer,omitempty"`
	EventURL        *string   `json:"event_url,omitempty"`
	RSVPURL         *string   `json:"rsvp_url,omitempty"`
	ImageURL        *string   `json:"image_url,omitempty"`
	Description     *string   `json:"description,omitempty"`
	Tags            []*string `json:"tags,omitempty"`
	BlockchainFocus []*string `json:"blockchain_focus,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateCandidateEvent(payload []byte) (*CandidateEvent, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode candidate JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize candidate JSON: %w", err)
	}

	var item CandidateEvent
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal candidate: %w", err)
	}

	if strings.TrimSpace(item.Name) == "" {
		return nil, fmt.Errorf("name must not be empty")
	}
	if strings.TrimSpace(item.EventDate) == "" {
		return nil, fmt.Errorf("event_date must not be empty")
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("candidate_event.schema.json", strings.NewReader(candidateEventSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("candidate_event.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}
