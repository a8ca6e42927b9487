package billing

import (
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

// Locale holds a tenant's regional defaults, carried through checkout
// metadata and applied at tenant creation.
type Locale struct {
	Currency string
	Timezone string
	Country  string
	Language string
}

// DefaultLocale is applied field-by-field when checkout metadata omits or
// carries an unparseable value. Documented fallback, not a silent default:
// the parse helpers only reach for it after validation fails.
var DefaultLocale = Locale{
	Currency: "USD",
	Timezone: "UTC",
	Country:  "US",
	Language: "en",
}

// ParseLocale validates the locale fields from session metadata. Invalid
// values degrade to DefaultLocale per field; locale defaults are display
// preferences and must never fail an onboarding that already took payment.
func ParseLocale(meta map[string]string) Locale {
	loc := DefaultLocale

	if unit, err := currency.ParseISO(meta[MetaCurrency]); err == nil {
		loc.Currency = unit.String()
	}

	if tz := meta[MetaTimezone]; tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			loc.Timezone = tz
		}
	}

	if c := strings.ToUpper(meta[MetaCountry]); len(c) == 2 {
		if region, err := language.ParseRegion(c); err == nil {
			loc.Country = region.String()
		}
	}

	if tag, err := language.Parse(meta[MetaLanguage]); err == nil {
		base, _ := tag.Base()
		loc.Language = base.String()
	}

	return loc
}
