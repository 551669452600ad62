// Package i18n matches client language preferences to the kiosk locales.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Supported kiosk locales.
const (
	English = "en"
	Malay   = "ms"
)

var (
	supported = []language.Tag{language.English, language.Malay}
	matcher   = language.NewMatcher(supported)
)

// Match returns the supported locale closest to raw, which may be a single
// tag or an Accept-Language header. Unknown input yields English.
func Match(raw string) string {
	locale, _ := Find(raw)
	return locale
}

// Find is Match that also reports whether raw named a supported locale at
// all.
func Find(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return English, false
	}
	tags, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(tags) == 0 {
		return English, false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English, false
	}
	if idx == 1 {
		return Malay, true
	}
	return English, true
}

// CountryLocale maps a country code to its kiosk locale.
func CountryLocale(country string) string {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "MY", "BN", "SG":
		return Malay
	}
	return English
}

// Region returns the first region named explicitly by raw, a tag or an
// Accept-Language header, as an upper-case ISO code. "en" alone names none.
func Region(raw string) string {
	tags, _, err := language.ParseAcceptLanguage(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	for _, tag := range tags {
		if region, conf := tag.Region(); conf == language.Exact {
			return region.String()
		}
	}
	return ""
}
