// Package helpers contains small text-recovery utilities for judge
// responses, which routinely arrive fenced, prefixed with prose, or
// otherwise not quite the strict JSON that was asked for.
package helpers

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ExtractJSONArray finds and returns the first JSON array in s. It removes
// a Markdown code fence if the content is fenced, takes the quick path when
// the text already starts with '[', and otherwise scans for the first
// balanced [...] segment, ignoring brackets inside strings.
func ExtractJSONArray(s string) (string, error) {
	s = trimBOM(strings.TrimSpace(s))

	if inner, ok := stripFirstCodeFence(s); ok {
		s = strings.TrimSpace(inner)
	}

	if len(s) > 0 && s[0] == '[' {
		if out, ok := extractBalancedFrom(s, 0); ok {
			return out, nil
		}
	}

	for i := 0; i < len(s); i++ {
		if s[i] == '[' {
			if out, ok := extractBalancedFrom(s, i); ok {
				return out, nil
			}
		}
	}

	return "", errors.New("no balanced JSON array found")
}

// ExtractJSON finds and returns the first JSON object or array in s,
// applying the same fence stripping and balanced-scan recovery.
func ExtractJSON(s string) (string, error) {
	s = trimBOM(strings.TrimSpace(s))

	if inner, ok := stripFirstCodeFence(s); ok {
		s = strings.TrimSpace(inner)
	}

	if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
		if out, ok := extractBalancedFrom(s, 0); ok {
			return out, nil
		}
	}

	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			if out, ok := extractBalancedFrom(s, i); ok {
				return out, nil
			}
		}
	}

	return "", errors.New("no balanced JSON object/array found")
}

// StripCodeFence returns s without code-fence wrapping. A fully fenced
// response is unwrapped to its inner content; a trailing fenced block is
// cut off at the first fence marker. Plain text comes back trimmed.
func StripCodeFence(s string) string {
	s = trimBOM(strings.TrimSpace(s))
	if inner, ok := stripFirstCodeFence(s); ok {
		return strings.TrimSpace(inner)
	}
	if i := strings.Index(s, "```"); i != -1 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// stripFirstCodeFence removes the first fenced code block if s starts with
// ``` or ~~~, tolerating an optional language tag (e.g. ```json).
func stripFirstCodeFence(s string) (inner string, ok bool) {
	trim := strings.TrimLeft(s, "\n\r\t ")
	if !strings.HasPrefix(trim, "```") && !strings.HasPrefix(trim, "~~~") {
		return "", false
	}
	fence := "```"
	if strings.HasPrefix(trim, "~~~") {
		fence = "~~~"
	}
	rest := trim[len(fence):]
	idx := strings.IndexByte(rest, '\n')
	if idx == -1 {
		return "", false
	}
	rest = rest[idx+1:]
	if end := strings.Index(rest, fence); end != -1 {
		return rest[:end], true
	}
	return "", false
}

// extractBalancedFrom attempts to extract a balanced JSON value starting at
// startIdx. It supports objects and arrays and correctly handles strings
// and escape sequences.
func extractBalancedFrom(s string, startIdx int) (string, bool) {
	if startIdx < 0 || startIdx >= len(s) {
		return "", false
	}

	start := s[startIdx]
	if start != '{' && start != '[' {
		return "", false
	}

	var (
		stack    []byte
		inString bool
		escape   bool
	)

	push := func(b byte) { stack = append(stack, b) }
	popMatches := func(b byte) bool {
		if len(stack) == 0 {
			return false
		}
		top := stack[len(stack)-1]
		if (top == '{' && b == '}') || (top == '[' && b == ']') {
			stack = stack[:len(stack)-1]
			return true
		}
		return false
	}

	push(start)

	for i := startIdx + 1; i < len(s); i++ {
		c := s[i]

		if inString {
			if escape {
				escape = false
				continue
			}
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
			push(c)
		case '}', ']':
			if !popMatches(c) {
				return "", false
			}
			if len(stack) == 0 {
				return s[startIdx : i+1], true
			}
		}
	}

	return "", false
}

// trimBOM removes an optional UTF-8 BOM.
func trimBOM(s string) string {
	if strings.HasPrefix(s, "﻿") {
		return strings.TrimPrefix(s, "﻿")
	}
	if len(s) >= 3 {
		b0, b1, b2 := s[0], s[1], s[2]
		if b0 == 0xEF && b1 == 0xBB && b2 == 0xBF && utf8.ValidString(s[3:]) {
			return s[3:]
		}
	}
	return s
}
