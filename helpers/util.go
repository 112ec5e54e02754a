package helpers

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Truncate cuts s to at most max runes
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// ResolveURL resolves href against base. Absolute hrefs are returned unchanged;
// an unparseable href or base yields the trimmed href.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}

	baseURL, err := url.Parse(base)
	if err != nil || base == "" {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}
