package validators

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// SanitizeString strips markup from shopper supplied text and truncates it to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	cleaned := html.UnescapeString(stripPolicy.Sanitize(strings.TrimSpace(input)))
	cleaned = strings.TrimSpace(cleaned)
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			return string(runes[:maxLen])
		}
	}
	return cleaned
}
