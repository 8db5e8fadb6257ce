package main

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

// cleanText normalizes apostrophes, collapses whitespace and trims.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "’", "'")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// normalizePhone reduces a North American number to its 10 digits.
// "+1 514 555 1234", "(514) 555-1234" and "5145551234" all give "5145551234".
// Input that does not yield exactly 10 digits is returned unchanged.
func normalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	digits := nonDigitRe.ReplaceAllString(phone, "")
	if len(digits) == 11 && strings.HasPrefix(digits, "1") {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return phone
	}
	return digits
}

func isCanonicalPhone(s string) bool {
	return len(s) == 10 && !nonDigitRe.MatchString(s)
}

// sameName compares two person names ignoring case, surrounding space and
// Unicode composition differences ("Éric" typed vs. transcribed).
func sameName(a, b string) bool {
	fold := func(s string) string {
		// Casers are stateful and not shared between goroutines.
		return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
	}
	return fold(a) == fold(b)
}
