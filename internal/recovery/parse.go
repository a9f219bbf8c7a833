// Package recovery pulls well-formed JSON objects out of model responses that were
// asked for a JSON array of events but may be wrapped in prose, fenced, truncated
// or broken mid-object.
package recovery

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\\r?\\n?(.*?)```")
	trailingCommaObject  = regexp.MustCompile(`,\s*}`)
	trailingCommaArray   = regexp.MustCompile(`,\s*]`)
	wrappedArrayFieldKey = []string{"events", "data"}
)

// ParseError reports that every recovery strategy was exhausted. Err is the
// decode error of the direct parse attempt.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse event array: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseEventArray returns every syntactically valid JSON object it can recover
// from raw. It never fabricates objects; it may return fewer than were present.
// An empty but well-formed array yields an empty slice and no error.
func ParseEventArray(raw string) ([]json.RawMessage, error) {
	candidate, located := fencedArray(raw)
	if !located {
		if objects, ok := wrappedObject(raw); ok {
			return objects, nil
		}
		candidate = bracketSpan(raw)
	}

	cleaned := repairTrailingCommas(stripOutsideBrackets(candidate))

	objects, directErr := decodeArray(cleaned)
	if directErr == nil {
		return objects, nil
	}

	if objects := scanObjects(cleaned); len(objects) > 0 {
		return objects, nil
	}
	if objects := scanBackward(cleaned); len(objects) > 0 {
		return objects, nil
	}
	return nil, &ParseError{Err: directErr}
}

// fencedArray returns the content of the first fenced code block that holds an array.
func fencedArray(raw string) (string, bool) {
	for _, match := range fencedBlockPattern.FindAllStringSubmatch(raw, -1) {
		content := strings.TrimSpace(match[1])
		if strings.HasPrefix(content, "[") {
			return content, true
		}
	}

	// A truncated response often loses its closing fence.
	if idx := strings.Index(raw, "```"); idx >= 0 && strings.Count(raw, "```") == 1 {
		rest := raw[idx+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		content := strings.TrimSpace(rest)
		if strings.HasPrefix(content, "[") {
			return content, true
		}
	}
	return "", false
}

// wrappedObject handles responses shaped like {"events": [...]} or {"data": [...]}.
// Elements are returned byte for byte as they appear in raw.
func wrappedObject(raw string) ([]json.RawMessage, bool) {
	trimmed := []byte(strings.TrimSpace(raw))
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}

	for _, key := range wrappedArrayFieldKey {
		value, ok := fields[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(value, &items); err != nil {
			continue
		}
		objects := make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			if object, ok := validObject(item); ok {
				objects = append(objects, object)
			}
		}
		return objects, true
	}
	return nil, false
}

// bracketSpan returns the first "[" through the last "]" (or the end of the text
// when the closing bracket was cut off). Text without "[" is returned untouched.
func bracketSpan(raw string) string {
	start := strings.IndexByte(raw, '[')
	if start < 0 {
		return raw
	}
	end := strings.LastIndexByte(raw, ']')
	if end < start {
		return raw[start:]
	}
	return raw[start : end+1]
}

func stripOutsideBrackets(s string) string {
	if start := strings.IndexByte(s, '['); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexByte(s, ']'); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return strings.TrimSpace(s)
}

func repairTrailingCommas(s string) string {
	s = trailingCommaObject.ReplaceAllString(s, "}")
	return trailingCommaArray.ReplaceAllString(s, "]")
}

// decodeArray fails unless every element of the array is well-formed JSON.
// RawMessage elements are not checked by the decoder itself.
func decodeArray(s string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil, err
	}
	objects := make([]json.RawMessage, 0, len(items))
	for i, item := range items {
		if !json.Valid(item) {
			return nil, fmt.Errorf("array element %d is not valid JSON", i)
		}
		if isObject(item) {
			objects = append(objects, item)
		}
	}
	return objects, nil
}

// scanObjects walks s tracking string state and brace depth; every top-level
// {...} span is decoded on its own, and spans that fail are dropped.
func scanObjects(s string) []json.RawMessage {
	var (
		objects  []json.RawMessage
		depth    int
		start    = -1
		inString bool
		escaped  bool
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if object, ok := decodeSingle(s[start : i+1]); ok {
					objects = append(objects, object)
				}
				start = -1
			}
		}
	}
	return objects
}

// scanBackward is the last resort for text whose forward brace depth never
// returns to zero (an unclosed wrapper object, a stray quote). Starting from the
// final "}", it pairs each closing brace with its opening brace and keeps every
// span that decodes, walking back towards the start of the array.
func scanBackward(s string) []json.RawMessage {
	var reversed []json.RawMessage

	end := strings.LastIndexByte(s, '}')
	for end >= 0 {
		start := matchingOpenBrace(s, end)
		if start < 0 {
			end = lastIndexBefore(s, '}', end)
			continue
		}
		if object, ok := decodeSingle(s[start : end+1]); ok {
			reversed = append(reversed, object)
			end = lastIndexBefore(s, '}', start)
			continue
		}
		end = lastIndexBefore(s, '}', end)
	}

	objects := make([]json.RawMessage, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		objects = append(objects, reversed[i])
	}
	return objects
}

func matchingOpenBrace(s string, end int) int {
	depth := 0
	for i := end; i >= 0; i-- {
		switch s[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func lastIndexBefore(s string, c byte, before int) int {
	if before <= 0 {
		return -1
	}
	return strings.LastIndexByte(s[:before], c)
}

func decodeSingle(fragment string) (json.RawMessage, bool) {
	return validObject(json.RawMessage(fragment))
}

// validObject accepts raw only when it is exactly one well-formed JSON object.
func validObject(raw json.RawMessage) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if !isObject(trimmed) || !json.Valid(trimmed) {
		return nil, false
	}
	return json.RawMessage(trimmed), true
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
