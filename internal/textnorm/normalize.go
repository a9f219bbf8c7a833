package textnorm

import (
	"net/url"
	"strings"
	"unicode"
)

// Name canonicalizes a free-text event name (or city/venue) into a comparable key:
// lowercase, apostrophes and backticks dropped, every other non-word character
// turned into a space, whitespace collapsed and trimmed. Normalizing an already
// normalized value returns it unchanged.
func Name(raw string) string {
	lowered := strings.ToLower(raw)
	if strings.TrimSpace(lowered) == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		switch {
		case isApostrophe(r):
			continue
		case isWordRune(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// URL reduces an event or RSVP link to host (without "www.") plus path (without
// trailing slash), lowercased with query and fragment dropped. Values that do not
// parse as absolute URLs fall back to the raw string lowercased with the query
// string and trailing slash removed.
func URL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Hostname() == "" {
		return fallbackURL(trimmed)
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	path := strings.TrimRight(parsed.Path, "/")
	return strings.ToLower(host + path)
}

// MergeName is the grouping key of the multi-day merge pass: Name with trailing
// "event"/"events" words and trailing four-digit years stripped, so that
// "ETHDenver 2026" and "ETHDenver Events" land in the same group.
func MergeName(raw string) string {
	normalized := Name(raw)
	for {
		fields := strings.Fields(normalized)
		if len(fields) < 2 {
			return normalized
		}
		last := fields[len(fields)-1]
		if last != "event" && last != "events" && !isYear(last) {
			return normalized
		}
		normalized = strings.Join(fields[:len(fields)-1], " ")
	}
}

func fallbackURL(raw string) string {
	lowered := strings.ToLower(raw)
	if idx := strings.IndexByte(lowered, '?'); idx >= 0 {
		lowered = lowered[:idx]
	}
	return strings.TrimRight(lowered, "/")
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '`', '‘', '’':
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r)
}

func isYear(token string) bool {
	if len(token) != 4 {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
