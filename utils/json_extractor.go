package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSONFound is returned when no valid JSON object/array is found in the input
var ErrNoJSONFound = errors.New("no valid JSON object or array found in response")

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.+?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
	smartQuotes          = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// ExtractJSON pulls a JSON document out of an LLM response. The strategies
// run in order and the first one producing valid JSON wins:
//
//  1. the response as is
//  2. the body of a markdown code fence
//  3. a balanced-bracket scan from the first {
//  4. the span from the first { to the last }
//  5. repair: trailing commas, smart quotes and missing closers
//  6. a balanced-bracket scan from the first [, for bare arrays
//
// Objects are preferred so bracketed prose like "section [2]" ahead of the
// payload is never mistaken for it.
func ExtractJSON(response string) (string, error) {
	log := WithComponent("JSON Extractor")

	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", ErrNoJSONFound
	}
	log.Debugf("Input length: %d chars", len(trimmed))

	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	cleaned := extractFromMarkdown(trimmed)
	if json.Valid([]byte(cleaned)) {
		log.Debug("Found valid JSON inside code fence")
		return cleaned, nil
	}

	if candidate := extractJSONByBrackets(cleaned, '{'); candidate != "" && json.Valid([]byte(candidate)) {
		log.Debugf("Found valid JSON via bracket matching (%d chars)", len(candidate))
		return candidate, nil
	}

	if candidate := outerObject(cleaned); candidate != "" && json.Valid([]byte(candidate)) {
		log.Debugf("Found valid JSON between outer braces (%d chars)", len(candidate))
		return candidate, nil
	}

	if candidate := repairJSON(cleaned); candidate != "" && json.Valid([]byte(candidate)) {
		log.Debugf("Repaired JSON is valid (%d chars)", len(candidate))
		return candidate, nil
	}

	if candidate := extractJSONByBrackets(cleaned, '['); candidate != "" && json.Valid([]byte(candidate)) {
		log.Debugf("Found valid JSON array via bracket matching (%d chars)", len(candidate))
		return candidate, nil
	}

	log.Warnf("No valid JSON found in response of %d chars", len(trimmed))
	return "", fmt.Errorf("%w: response length=%d", ErrNoJSONFound, len(trimmed))
}

// ExtractJSONTo extracts JSON from response and unmarshals it into the target
func ExtractJSONTo(response string, target interface{}) error {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), target); err != nil {
		return fmt.Errorf("decode extracted JSON: %w", err)
	}
	return nil
}

// extractFromMarkdown returns the body of the first code fence, or the
// input with a dangling opening fence removed
func extractFromMarkdown(s string) string {
	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractJSONByBrackets uses bracket matching to find the first complete
// value opened by open, honouring string literals and escapes
func extractJSONByBrackets(s string, open byte) string {
	start := strings.IndexByte(s, open)
	if start == -1 {
		return ""
	}

	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 || !matches(stack[len(stack)-1], c) {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1]
			}
		}
	}

	return ""
}

// outerObject returns the span between the first { and the last }
func outerObject(s string) string {
	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first == -1 || last <= first {
		return ""
	}
	return s[first : last+1]
}

// repairJSON fixes the defects models commonly produce: typographic quotes,
// trailing commas and output truncated before the closing brackets
func repairJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		start = strings.Index(s, "[")
	}
	if start == -1 {
		return ""
	}
	s = smartQuotes.Replace(s[start:])

	// Drop everything after the last closer, it is prose
	if last := strings.LastIndexAny(s, "}]"); last != -1 {
		s = s[:last+1]
	}

	s = trailingCommaPattern.ReplaceAllString(s, "$1")
	return closeOpenBrackets(s)
}

// closeOpenBrackets appends the closers needed to balance s. An unterminated
// string is closed first.
func closeOpenBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
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
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 && matches(stack[len(stack)-1], c) {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	trimmed := strings.TrimRight(b.String(), " \t\r\n,")
	b.Reset()
	b.WriteString(trimmed)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

func matches(open, close byte) bool {
	return (open == '{' && close == '}') || (open == '[' && close == ']')
}
