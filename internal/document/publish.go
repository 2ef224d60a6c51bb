package document

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// TimeFormat is the wire representation of publish instants:
// 2012-01-01 09:00 AM -0500
const TimeFormat = "2006-01-02 03:04 PM -0700"

// Layouts accepted when parsing publish text, tried in order. Aware layouts
// come first so an explicit offset always wins over any timezone hint.
var publishLayouts = []string{
	TimeFormat,
	"2006-01-02 3:04 PM -0700",
	time.RFC3339,
	"2006-01-02 03:04 PM",
	"2006-01-02 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// usZoneOffsets maps legacy US timezone abbreviations to fixed UTC offsets
// in seconds. Older documents in the wild carry these instead of IANA names.
var usZoneOffsets = map[string]int{
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
	"UTC": 0,
	"GMT": 0,
}

// nlParser is the last-resort parser for human-entered dates that none of
// the fixed layouts recognize ("tomorrow 9am" in a draft's publish field).
var nlParser = when.New(nil)

func init() {
	nlParser.Add(en.All...)
	nlParser.Add(common.All...)
}

// LoadZone resolves a timezone name to a location. It accepts IANA names
// ("US/Eastern") and the legacy US abbreviations; an empty name yields UTC.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	if off, ok := usZoneOffsets[name]; ok {
		return time.FixedZone(name, off), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParsePublish parses publish text into an absolute instant.
//
// If the text carries its own offset, that offset wins. Otherwise the
// result is interpreted in the hinted timezone, or UTC when no hint is
// given. A bare date is combined with midnight. Comparisons between two
// publish instants are always made on the absolute instant, never on the
// rendered text, so posts authored in different zones order correctly.
func ParsePublish(text, timezone string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty publish value")
	}

	hint, err := LoadZone(timezone)
	if err != nil {
		return time.Time{}, err
	}

	// A trailing US abbreviation acts as the hint for the remaining text.
	if fields := strings.Fields(text); len(fields) > 1 {
		last := fields[len(fields)-1]
		if off, ok := usZoneOffsets[last]; ok {
			hint = time.FixedZone(last, off)
			text = strings.TrimSpace(strings.TrimSuffix(text, last))
		}
	}

	for _, layout := range publishLayouts {
		t, err := time.Parse(layout, text)
		if err != nil {
			continue
		}
		if layoutAware(layout) {
			return t, nil
		}
		return attachZone(t, hint), nil
	}

	// Natural-language fallback.
	if r, err := nlParser.Parse(text, time.Now().In(hint)); err == nil && r != nil {
		return r.Time, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized publish value %q", text)
}

// RenderPublish converts an instant to the named zone and formats it in the
// wire form. It is the exact inverse of ParsePublish for round-trip use.
func RenderPublish(t time.Time, timezone string) string {
	loc, err := LoadZone(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimeFormat)
}

func layoutAware(layout string) bool {
	return strings.Contains(layout, "-0700") || strings.Contains(layout, "Z07:00")
}

// attachZone reinterprets the clock reading of a naive parse result in loc
// without shifting the wall time.
func attachZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
