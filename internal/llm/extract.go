package llm

import (
	"fmt"
	"strings"
)

// ExtractJSONObject pulls a single JSON object out of a model reply. It looks
// for a ```json fence first, then any ``` fence (skipping a language tag line),
// then falls back to the outermost {...} span.
func ExtractJSONObject(text string) (string, error) {
	if body, ok := fenced(text, "```json"); ok {
		return body, nil
	}
	if body, ok := fenced(text, "```"); ok {
		return body, nil
	}
	return span(text, '{', '}')
}

// ExtractJSONArray returns the outermost [...] span of a model reply.
func ExtractJSONArray(text string) (string, error) {
	return span(text, '[', ']')
}

func fenced(text, open string) (string, bool) {
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	if open == "```" {
		// A bare fence may carry a language tag on its first line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			if tag := strings.TrimSpace(rest[:nl]); tag != "" && !strings.HasPrefix(tag, "{") {
				rest = rest[nl+1:]
			}
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func span(text string, open, close byte) (string, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no %c...%c found in response", ErrInvalidResponse, open, close)
	}
	return text[start : end+1], nil
}
