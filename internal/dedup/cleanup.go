package dedup

import (
	"sort"
	"strings"

	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/fingerprint"
)

const (
	SignalSourceID = "source_id"
	SignalURL      = "url"
	SignalContent  = "content"
)

// Removal is one persisted event slated for deletion by the cleanup scan.
type Removal struct {
	Event      event.Persisted
	Signal     string
	MatchedKey string
}

// DuplicateGroup is a kept record plus the later-created records that duplicate it.
type DuplicateGroup struct {
	Keep   event.Persisted
	Remove []Removal
}

// FindDuplicates scans a full historical set and groups duplicates by source_id,
// then URL fingerprint, then content fingerprint. Within each group the
// earliest-created record is kept. It uses the same fingerprint functions as
// Session, so a row it keeps would also block the same candidate at ingest time.
func FindDuplicates(events []event.Persisted) []DuplicateGroup {
	ordered := make([]event.Persisted, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var groups []*DuplicateGroup
	bySourceID := map[string]*DuplicateGroup{}
	byURL := map[string]*DuplicateGroup{}
	byContent := map[string]*DuplicateGroup{}

	for _, persisted := range ordered {
		sourceID := strings.TrimSpace(persisted.SourceID)

		var keys fingerprint.Set
		if persisted.Valid() {
			keys = fingerprint.Compute(persisted.Candidate)
		}

		group, signal, matched := matchGroup(sourceID, keys, bySourceID, byURL, byContent)
		if group == nil {
			group = &DuplicateGroup{Keep: persisted}
			groups = append(groups, group)
		} else {
			group.Remove = append(group.Remove, Removal{Event: persisted, Signal: signal, MatchedKey: matched})
		}

		claim(bySourceID, group, sourceID)
		for _, key := range keys.URLKeys() {
			claim(byURL, group, key)
		}
		for _, key := range keys.ContentKeys() {
			claim(byContent, group, key)
		}
	}

	out := make([]DuplicateGroup, 0, len(groups))
	for _, group := range groups {
		if len(group.Remove) > 0 {
			out = append(out, *group)
		}
	}
	return out
}

func matchGroup(
	sourceID string,
	keys fingerprint.Set,
	bySourceID map[string]*DuplicateGroup,
	byURL map[string]*DuplicateGroup,
	byContent map[string]*DuplicateGroup,
) (*DuplicateGroup, string, string) {
	if sourceID != "" {
		if group, ok := bySourceID[sourceID]; ok {
			return group, SignalSourceID, sourceID
		}
	}
	for _, key := range keys.URLKeys() {
		if group, ok := byURL[key]; ok {
			return group, SignalURL, key
		}
	}
	for _, key := range keys.ContentKeys() {
		if group, ok := byContent[key]; ok {
			return group, SignalContent, key
		}
	}
	return nil, "", ""
}

func claim(index map[string]*DuplicateGroup, group *DuplicateGroup, key string) {
	if key == "" {
		return
	}
	if _, taken := index[key]; !taken {
		index[key] = group
	}
}

// RemovalIDs flattens the ids of every record slated for removal.
func RemovalIDs(groups []DuplicateGroup) []string {
	var ids []string
	for _, group := range groups {
		for _, removal := range group.Remove {
			ids = append(ids, removal.Event.ID)
		}
	}
	return ids
}
