// Package normalize canonicalizes provider records into the comparable
// NormalizedRecord shape: one calendar representation, one casing, one
// holiday-type vocabulary.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/daybreak-data/holiday-registry/internal/model"
	"github.com/daybreak-data/holiday-registry/internal/registry"
)

// dateLayouts lists the formats the three providers have been observed to
// emit, most common first.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"02.01.2006",
	"01/02/2006",
	"2 January 2006",
}

// countryLanguages maps country codes to the language used for locale-aware
// re-casing of holiday names. Countries not listed fall back to English
// casing rules, which are safe for the providers' EN-preferred payloads.
var countryLanguages = map[string]language.Tag{
	"DE": language.German,
	"AT": language.German,
	"CH": language.German,
	"FR": language.French,
	"ES": language.Spanish,
	"MX": language.Spanish,
	"IT": language.Italian,
	"PT": language.Portuguese,
	"BR": language.BrazilianPortuguese,
	"NL": language.Dutch,
	"TR": language.Turkish,
}

// ErrMalformed marks a raw record that cannot be normalized. The caller
// skips and logs such records instead of aborting the batch.
var ErrMalformed = eris.New("normalize: malformed record")

// Normalize converts one raw provider mention into the canonical shape.
// Unrecognized type vocabulary degrades to unknown rather than failing; only
// an unusable date or empty name is an error.
func Normalize(raw model.RawRecord, reg *registry.Registry) (model.NormalizedRecord, error) {
	name := CleanName(raw.RawName, raw.CountryCode)
	if name == "" {
		return model.NormalizedRecord{}, eris.Wrapf(ErrMalformed, "empty name from %s", raw.ProviderID)
	}

	date, err := ParseDate(raw.Date)
	if err != nil {
		return model.NormalizedRecord{}, eris.Wrapf(ErrMalformed, "unparseable date %q from %s", raw.Date, raw.ProviderID)
	}

	return model.NormalizedRecord{
		CountryCode:    strings.ToUpper(strings.TrimSpace(raw.CountryCode)),
		Date:           date,
		CanonicalName:  name,
		HolidayType:    reg.MapType(raw.ProviderID, raw.RawType),
		SourceProvider: raw.ProviderID,
		Confidence:     reg.Prior(raw.ProviderID),
	}, nil
}

// ParseDate tries the known provider layouts and returns the date truncated
// to UTC midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, eris.Errorf("no layout matched %q", s)
}

// CleanName trims and collapses whitespace and repairs shouting or
// all-lowercase names with locale-aware title casing. Mixed-case names are
// left as the provider wrote them, since they often carry deliberate casing
// ("1. Weihnachtstag", "St. Stephen's Day").
func CleanName(name, countryCode string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	cleaned := strings.Join(fields, " ")

	if hasMixedCase(cleaned) {
		return cleaned
	}

	lang, ok := countryLanguages[strings.ToUpper(countryCode)]
	if !ok {
		lang = language.English
	}
	return cases.Title(lang).String(strings.ToLower(cleaned))
}

func hasMixedCase(s string) bool {
	var hasUpper, hasLower bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
		if hasUpper && hasLower {
			return true
		}
	}
	return false
}

// IsWeekend reports whether a date falls on Saturday or Sunday. Weekend
// candidates skip oracle verification: the day is non-working regardless.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
