// Package llmjson recovers JSON objects from free-form language-model output.
package llmjson

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoObject is returned when the text contains no JSON object at all.
var ErrNoObject = eris.New("llmjson: no JSON object found")

// Extract strips markdown fences and surrounding prose and returns the first
// JSON object in text. A truncated object is closed with Repair.
func Extract(text string) (string, error) {
	text = stripFences(strings.TrimSpace(text))

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoObject
	}
	text = text[start:]

	if end := objectEnd(text); end >= 0 {
		return text[:end+1], nil
	}
	return Repair(strings.TrimSpace(text)), nil
}

// Decode extracts the first JSON object in text and unmarshals it into out.
func Decode(text string, out any) error {
	obj, err := Extract(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return eris.Wrap(err, "llmjson: decode")
	}
	return nil
}

// stripFences returns the body of the first ``` fenced block, or text
// unchanged when there is none.
func stripFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	body := text[open+3:]
	// Drop the info string ("json", "JSON", ...) on the fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// objectEnd returns the index of the brace closing the object that starts
// at text[0], or -1 if the object is never closed.
func objectEnd(text string) int {
	depth := 0
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Repair closes an unterminated string and any unclosed brackets or braces
// in truncated JSON, dropping a dangling key or trailing comma first.
func Repair(text string) string {
	if text == "" {
		return text
	}

	var stack []byte
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if escape {
		text = text[:len(text)-1]
	}
	if inString {
		text += `"`
	}

	text = strings.TrimRight(text, " \t\n\r,")
	if strings.HasSuffix(text, ":") {
		cut := strings.LastIndexAny(text, ",{[")
		if cut >= 0 {
			if text[cut] == ',' {
				text = text[:cut]
			} else {
				text = text[:cut+1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}
	return text
}
