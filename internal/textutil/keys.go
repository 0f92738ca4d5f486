package textutil

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxKeyLength bounds the byte length of a normalized chunk key.
const MaxKeyLength = 512

var (
	// ErrEmptyKey is returned when a key is blank after normalization.
	ErrEmptyKey = errors.New("chunk key is empty")
	// ErrKeyTooLong is returned when a key exceeds MaxKeyLength bytes.
	ErrKeyTooLong = errors.New("chunk key too long")
	// ErrKeyControl is returned when a key contains control characters.
	ErrKeyControl = errors.New("chunk key contains control characters")
)

// NormalizeKey trims and NFC-normalizes a chunk key.
func NormalizeKey(key string) (string, error) {
	normalized := norm.NFC.String(strings.TrimSpace(key))
	if normalized == "" {
		return "", ErrEmptyKey
	}
	if len(normalized) > MaxKeyLength {
		return "", ErrKeyTooLong
	}
	if strings.IndexFunc(normalized, unicode.IsControl) >= 0 {
		return "", ErrKeyControl
	}
	return normalized, nil
}

// NormalizeKeys normalizes every key and drops exact repeats while keeping
// first-seen order.
func NormalizeKeys(keys []string) ([]string, error) {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		normalized, err := NormalizeKey(key)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out, nil
}

// SanitizeToken converts a string to a lowercase token limited to letters,
// digits, hyphens and underscores. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}
