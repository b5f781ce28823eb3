package worker

import (
	"encoding/json"
	"regexp"
	"strings"
)

var thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// CleanResponse strips reasoning-model think blocks and surrounding
// whitespace from a raw model response.
func CleanResponse(text string) string {
	cleaned := thinkBlockRe.ReplaceAllString(text, "")
	return strings.TrimSpace(cleaned)
}

// ExtractJSON pulls the first well-formed JSON object out of a model
// response. It checks fenced code blocks first, then scans for a balanced
// brace fragment. Returns the empty string when nothing parses.
func ExtractJSON(text string) string {
	text = CleanResponse(text)

	if fenced := extractFenced(text); fenced != "" {
		if json.Valid([]byte(fenced)) {
			return fenced
		}
	}

	start := strings.Index(text, "{")
	for start >= 0 {
		if frag := balancedFrom(text, start); frag != "" && json.Valid([]byte(frag)) {
			return frag
		}
		next := strings.Index(text[start+1:], "{")
		if next < 0 {
			break
		}
		start = start + 1 + next
	}
	return ""
}

// extractFenced returns the body of the first ```json or ``` fenced block.
func extractFenced(text string) string {
	idx := strings.Index(text, "```")
	if idx < 0 {
		return ""
	}
	rest := text[idx+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 {
		lang := strings.TrimSpace(rest[:nl])
		if lang == "" || strings.EqualFold(lang, "json") {
			rest = rest[nl+1:]
			if end := strings.Index(rest, "```"); end >= 0 {
				return strings.TrimSpace(rest[:end])
			}
		}
	}
	return ""
}

// balancedFrom returns the shortest brace-balanced fragment starting at
// start, respecting string literals, or "" if braces never balance.
func balancedFrom(text string, start int) string {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// ValidJSONObject reports whether a response contains a parseable JSON
// object, used as the validation predicate for analysis-style workers.
func ValidJSONObject(text string) bool {
	return ExtractJSON(text) != ""
}
