// Package sanitize escapes and normalizes user-provided text before it is
// persisted, rendered in emails, or forwarded to the CRM.
package sanitize

import (
	"html"
	"strings"
	"unicode"
)

// Sanitizer implements intake.Sanitizer.
type Sanitizer struct{}

// New returns a Sanitizer.
func New() *Sanitizer {
	return &Sanitizer{}
}

// EscapeText trims s, drops control characters other than newlines and tabs,
// and HTML-escapes the rest.
func (Sanitizer) EscapeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == '\r' {
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	return html.EscapeString(s)
}

// SanitizeName collapses internal whitespace and escapes markup. Unicode
// letters and punctuation such as apostrophes survive (escaped).
func (s Sanitizer) SanitizeName(name string) string {
	return s.EscapeText(strings.Join(strings.Fields(name), " "))
}

// SanitizeEmail trims and lowercases an address. Characters outside the
// printable ASCII range are dropped.
func (Sanitizer) SanitizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r > '~' || r == '<' || r == '>' || r == '"' {
			return -1
		}
		return r
	}, email)
}
