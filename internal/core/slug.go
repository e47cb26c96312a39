package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInput is returned when a caller-supplied value cannot be used.
var ErrInvalidInput = errors.New("invalid input")

// fallbackSlug is used when normalization strips every character.
const fallbackSlug = "plan"

func isSlugSeparator(r rune) bool {
	return r == '-' || r == '_' || r == '/'
}

func isSlugAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// NormalizeSlug converts a free-text change or run name into a slug safe for
// file paths and branch names. Disallowed characters become "-", repeated
// separators collapse and leading or trailing separators are dropped.
// NormalizeSlug(NormalizeSlug(s)) == NormalizeSlug(s) for every valid s.
func NormalizeSlug(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	var last rune
	for _, r := range trimmed {
		if !isSlugAlnum(r) && !isSlugSeparator(r) {
			r = '-'
		}
		if isSlugSeparator(r) && r == last {
			continue
		}
		b.WriteRune(r)
		last = r
	}

	slug := strings.TrimFunc(b.String(), isSlugSeparator)
	if slug == "" {
		return fallbackSlug, nil
	}
	return slug, nil
}
