package helpers

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText collapses every whitespace run into a single space and trims the result.
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// TruncateRunes cuts s to at most n runes without splitting a UTF-8 sequence.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ExtractJSON finds the first balanced JSON object or array in s. Model
// replies often wrap JSON in a fenced block or surround it with prose.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	if inner, ok := unwrapFence(s); ok {
		s = strings.TrimSpace(inner)
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		if end, ok := balancedEnd(s, i); ok {
			return s[i : end+1], nil
		}
	}
	return "", errors.New("no balanced JSON object/array found")
}

// unwrapFence returns the body of a leading ``` or ~~~ block.
func unwrapFence(s string) (string, bool) {
	for _, fence := range []string{"```", "~~~"} {
		if !strings.HasPrefix(s, fence) {
			continue
		}
		rest := s[len(fence):]
		nl := strings.IndexByte(rest, '\n')
		if nl == -1 {
			return "", false
		}
		rest = rest[nl+1:]
		if end := strings.Index(rest, fence); end != -1 {
			return rest[:end], true
		}
		return "", false
	}
	return "", false
}

// balancedEnd returns the index closing the value opened at s[start],
// skipping brackets inside string literals.
func balancedEnd(s string, start int) (int, bool) {
	var (
		stack    []byte
		inString bool
		escape   bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return 0, false
			}
			top := stack[len(stack)-1]
			if (top == '{' && c != '}') || (top == '[' && c != ']') {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
