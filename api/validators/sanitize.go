package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText trims free-form shopper input, drops control characters other
// than newlines and cuts it to maxRunes without splitting a character.
func CleanText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(input))

	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		cleaned = string([]rune(cleaned)[:maxRunes])
	}
	return strings.TrimSpace(cleaned)
}
