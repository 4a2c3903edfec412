package statement

import (
	"regexp"
	"strings"
)

var (
	punctRe = regexp.MustCompile(`[^\w\s]`)
	digitRe = regexp.MustCompile(`\d+`)

	// Broader than the parser's code-strip set: applied right before two
	// descriptions are compared, so OCR noise and reference numbers do not
	// depress similarity scores.
	noiseWordRe = regexp.MustCompile(`\b(pos|atm|ach|chk|dep|wd|tfr|fee|debit|credit)\b`)
)

// Normalize canonicalizes description text for comparison: lower-case,
// punctuation and digits stripped, bank noise words removed, whitespace
// collapsed.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = punctRe.ReplaceAllString(s, " ")
	s = noiseWordRe.ReplaceAllString(s, " ")
	s = digitRe.ReplaceAllString(s, " ")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
