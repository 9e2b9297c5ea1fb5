package rating

import "strings"

// NormalizeDigits canonicalizes a dialed number to a bare digit string. All
// non-digit characters are stripped; a leading "00" international dialing
// prefix is removed. Always returns a (possibly empty) digit string.
func NormalizeDigits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "00") {
		digits = digits[2:]
	}
	return digits
}
