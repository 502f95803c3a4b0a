package render

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Options controls how dates are displayed.
type Options struct {
	// Location is the display time zone; nil means time.Local.
	Location *time.Location
	// Locale selects the display layout; the zero value means en-US.
	Locale language.Tag
}

// displayLocales and displayLayouts are parallel; index 0 is the default.
var (
	displayLocales = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Japanese,
	}
	displayLayouts = []string{
		"1/2/2006, 3:04:05 PM",
		"02/01/2006, 15:04:05",
		"2.1.2006, 15:04:05",
		"02/01/2006 15:04:05",
		"2006/1/2 15:04:05",
	}
	localeMatcher = language.NewMatcher(displayLocales)
)

// LocaleFromAcceptLanguage picks the best supported display locale for an
// Accept-Language header value.
func LocaleFromAcceptLanguage(header string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return displayLocales[0]
	}
	_, idx, _ := localeMatcher.Match(tags...)
	return displayLocales[idx]
}

func layoutFor(tag language.Tag) string {
	if tag == language.Und {
		return displayLayouts[0]
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return displayLayouts[0]
	}
	return displayLayouts[idx]
}

// Date-only values are UTC; date-times without an offset are local to the
// display location.
var (
	zonedLayouts = []string{time.RFC3339Nano}
	naiveLayouts = []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04"}
	dateLayout   = "2006-01-02"
)

// ParseTimestamp parses the ISO-like timestamps returned by the API.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FormatTimestamp renders s for display, or InvalidDate when s is missing
// or unparseable.
func FormatTimestamp(s string, opts Options) string {
	t, ok := ParseTimestamp(s, opts.Location)
	if !ok {
		return InvalidDate
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(layoutFor(opts.Locale))
}
