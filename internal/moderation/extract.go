package moderation

import (
	"encoding/json"
	"regexp"
	"strings"
)

const fence = "```"

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripReasoning removes <think>...</think> blocks some models emit before
// their answer.
func StripReasoning(reply string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(reply, ""))
}

// ExtractJSON returns the first well-formed JSON object in reply. The
// contents of the first fenced code block are searched before the whole
// reply, so commentary around a ```json block is ignored.
func ExtractJSON(reply string) (string, bool) {
	reply = StripReasoning(reply)
	if block, ok := fencedBlock(reply); ok {
		if obj, ok := firstObject(block); ok {
			return obj, true
		}
	}
	return firstObject(reply)
}

// fencedBlock returns the body of the first ``` fence. The optional info
// string after the opening fence (e.g. "json") is skipped; an unterminated
// fence runs to the end of the text.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	body := text[start+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return body, true
}

// firstObject scans for balanced {...} spans in order and returns the first
// one that decodes as JSON.
func firstObject(text string) (string, bool) {
	for offset := 0; offset < len(text); {
		open := strings.IndexByte(text[offset:], '{')
		if open < 0 {
			return "", false
		}
		open += offset
		if end, ok := matchBrace(text, open); ok {
			candidate := text[open : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		offset = open + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at open,
// skipping braces inside JSON string literals.
func matchBrace(text string, open int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
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
				return i, true
			}
		}
	}
	return 0, false
}
