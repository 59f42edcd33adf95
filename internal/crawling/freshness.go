package crawling

import (
	"strconv"
	"strings"
	"time"
)

// DefaultFreshnessWindow is the maximum accepted article age.
const DefaultFreshnessWindow = 3 * 24 * time.Hour

// TimeParts is a broken-down timestamp as some feeds report it.
// A nil Location means UTC.
type TimeParts struct {
	Year     int
	Month    int
	Day      int
	Hour     int
	Minute   int
	Second   int
	Location *time.Location
}

// Time converts the parts to a time.Time.
func (p TimeParts) Time() (time.Time, bool) {
	if p.Year <= 0 || p.Month < 1 || p.Month > 12 || p.Day < 1 || p.Day > 31 {
		return time.Time{}, false
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(p.Year, time.Month(p.Month), p.Day, p.Hour, p.Minute, p.Second, 0, loc), true
}

// layouts are tried in order for string timestamps. Layouts without a zone
// are parsed as UTC.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp interprets v as an absolute time. It accepts time.Time,
// *time.Time, TimeParts, formatted strings and unix seconds.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case TimeParts:
		return t.Time()
	case *TimeParts:
		if t == nil {
			return time.Time{}, false
		}
		return t.Time()
	case int:
		return unix(int64(t))
	case int64:
		return unix(t)
	case float64:
		return unix(int64(t))
	case string:
		return parseString(t)
	default:
		return time.Time{}, false
	}
}

func unix(sec int64) (time.Time, bool) {
	if sec <= 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return unix(sec)
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Freshness rejects articles older than Window. Articles whose age cannot
// be determined pass.
type Freshness struct {
	Window time.Duration
	Now    func() time.Time
}

// NewFreshness returns a filter with the given window; 0 selects the default.
func NewFreshness(window time.Duration) Freshness {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return Freshness{Window: window, Now: time.Now}
}

// Fresh reports whether published falls within the window.
func (f Freshness) Fresh(published any) bool {
	t, ok := ParseTimestamp(published)
	if !ok {
		return true
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	window := f.Window
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	return now().Sub(t) <= window
}
