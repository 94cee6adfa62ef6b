// Package sanitize strips markup from untrusted text before it is placed in
// payment metadata, emails or dashboards.
package sanitize

import (
	"regexp"
	"strings"
)

// gap matches what browsers drop inside a URL scheme (tab, newline) and
// plain spaces an attacker may pad with.
const gap = `[\s\x00-\x1f]*`

var (
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

	scriptSchemePattern = regexp.MustCompile(`(?i)(` + spaced("javascript") + `|` + spaced("vbscript") + `|\b` + spaced("data") + `)` + gap + `:`)

	// inline handlers inside a tag ("<img onerror=") or after a quote that
	// closes an attribute value ("\" onload=")
	tagHandlerPattern   = regexp.MustCompile(`(?i)(<[^>]*?[\s/"'])on[a-z]+\s*=`)
	quoteHandlerPattern = regexp.MustCompile(`(?i)(["'][\s/]*)on[a-z]+\s*=`)

	tagDelimiters = strings.NewReplacer("<", "", ">", "")
)

func spaced(word string) string {
	parts := make([]string, 0, len(word))
	for _, r := range word {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return strings.Join(parts, gap)
}

const maxPasses = 5

// String removes control characters, tag delimiters, script-capable URI
// schemes (javascript:, vbscript:, any data:) and inline event handlers.
// Passes repeat until the value is stable so that nested payloads like
// "javajavascript:script:" do not survive.
func String(s string) string {
	out := strings.TrimSpace(controlChars.ReplaceAllString(s, " "))
	for i := 0; i < maxPasses; i++ {
		next := tagHandlerPattern.ReplaceAllString(out, "$1")
		next = quoteHandlerPattern.ReplaceAllString(next, "$1")
		next = tagDelimiters.Replace(next)
		next = scriptSchemePattern.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == out {
			break
		}
		out = next
	}
	return out
}
