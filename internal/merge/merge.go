// Package merge collapses the per-day listings of one multi-day event into a
// single ranged record.
package merge

import (
	"sort"
	"strings"

	"horse.fit/event-pipeline/internal/event"
	"horse.fit/event-pipeline/internal/textnorm"
)

const DefaultMaxDaysApart = 14

// Group is one set of persisted records that describe the same multi-day event.
// Keep is rewritten to span StartDate..EndDate; Absorbed rows are removed.
type Group struct {
	Key       string
	Keep      event.Persisted
	Absorbed  []event.Persisted
	StartDate event.Date
	EndDate   event.Date
}

// AbsorbedIDs returns the ids slated for removal.
func (g Group) AbsorbedIDs() []string {
	ids := make([]string, 0, len(g.Absorbed))
	for _, absorbed := range g.Absorbed {
		ids = append(ids, absorbed.ID)
	}
	return ids
}

// FindGroups groups records by merge name and location and returns every group
// of two or more records whose dates fit within maxDaysApart. Zero merges only
// same-day listings; a negative maxDaysApart means DefaultMaxDaysApart. Records
// without a name or date are ignored. Running it again on the merged result
// finds nothing.
func FindGroups(events []event.Persisted, maxDaysApart int) []Group {
	if maxDaysApart < 0 {
		maxDaysApart = DefaultMaxDaysApart
	}

	ordered := make([]event.Persisted, 0, len(events))
	for _, persisted := range events {
		if persisted.Valid() {
			ordered = append(ordered, persisted)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var keys []string
	buckets := map[string][]event.Persisted{}
	for _, persisted := range ordered {
		key := groupKey(persisted)
		if _, seen := buckets[key]; !seen {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], persisted)
	}

	var groups []Group
	for _, key := range keys {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}

		start, end := members[0].Date, members[0].LastDate()
		for _, member := range members[1:] {
			if member.Date.Before(start) {
				start = member.Date
			}
			if last := member.LastDate(); last.After(end) {
				end = last
			}
		}
		if end.DaysAfter(start) > maxDaysApart {
			continue
		}

		groups = append(groups, Group{
			Key:       key,
			Keep:      members[0],
			Absorbed:  append([]event.Persisted(nil), members[1:]...),
			StartDate: start,
			EndDate:   end,
		})
	}
	return groups
}

// Apply returns the kept record as it should look after the merge.
func (g Group) Apply() event.Persisted {
	merged := g.Keep
	merged.Date = g.StartDate
	merged.EndDate = g.EndDate
	merged.MultiDay = true
	return merged
}

// groupKey is "{merge name}|{city}" or "{merge name}|venue:{venue}" when the
// record has no city.
func groupKey(p event.Persisted) string {
	location := textnorm.Name(p.City)
	if location == "" {
		if venue := textnorm.Name(p.Venue); venue != "" {
			location = "venue:" + venue
		}
	}
	return textnorm.MergeName(p.Name) + "|" + strings.TrimSpace(location)
}
