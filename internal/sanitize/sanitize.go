// Package sanitize normalizes user-supplied network names before they are
// stored, rendered into DOT labels or used in archive file names.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxNameLength is the maximum allowed length for network names.
const MaxNameLength = 64

// Runs of the same separator.
var (
	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
	reRepeatedDots        = regexp.MustCompile(`\.{2,}`)
)

// Name sanitizes a network name. Whitespace becomes a hyphen, control
// characters are dropped and only [a-zA-Z0-9._-] is kept. Repeated
// separators are collapsed, leading and trailing separators trimmed, and
// the result is truncated to MaxNameLength. The result may be empty.
func Name(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range stripControlChars(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune('-')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = reRepeatedDots.ReplaceAllString(s, ".")
	s = strings.Trim(s, "-_.")

	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "-_.")
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F) from the string,
// except for newline (0x0A) and tab (0x09) which are preserved.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
