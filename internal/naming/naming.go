// Package naming normalises the identity fields users type in.
package naming

import "strings"

const (
	minPhoneDigits = 6
	maxPhoneDigits = 15
)

// NormalizePhone strips formatting from a phone number so that the same number typed
// two different ways maps to one account. A single leading '+' is kept.
func NormalizePhone(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	var b strings.Builder
	b.Grow(len(s))
	digits := 0
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '\t':
			// formatting
		default:
			return "", false
		}
	}

	if digits < minPhoneDigits || digits > maxPhoneDigits {
		return "", false
	}
	return b.String(), true
}

// NormalizeName trims a display name and collapses runs of whitespace.
func NormalizeName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// CleanDescription trims a free-form description. Empty is allowed.
func CleanDescription(raw string) string {
	return strings.TrimSpace(raw)
}
