// Package extractor pulls appointment date/times out of free-text email bodies.
//
// Text is matched against an ordered list of pattern families. The first family
// whose pattern matches and whose captured components form a valid date wins;
// later families are not attempted. Wall-clock values are interpreted in the
// extractor's location.
package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var monthNames = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// family is one self-contained date/time text format
type family struct {
	name    string
	pattern *regexp.Regexp
	build   func(groups []string, now time.Time, loc *time.Location) (time.Time, error)
}

// Ordered by priority. Newer formats go first.
var families = []family{
	{
		// from December 07, 2025 11:45
		name:    "english-longform",
		pattern: regexp.MustCompile(`(?i)from[\s\p{Zs}]+([a-z]+)[\s\p{Zs}]+(\d{1,2}),[\s\p{Zs}]+(\d{4})[\s\p{Zs}]+(\d{1,2}):(\d{2})`),
		build: func(g []string, _ time.Time, loc *time.Location) (time.Time, error) {
			month, ok := monthNames[strings.ToLower(g[0])]
			if !ok {
				return time.Time{}, fmt.Errorf("unknown month name %q", g[0])
			}
			return buildDate(loc, g[2], strconv.Itoa(int(month)), g[1], g[3], g[4])
		},
	},
	{
		// 2024年12月7日 14:30
		name:    "kanji-full",
		pattern: regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日[\s\p{Zs}]*(\d{1,2}):(\d{2})`),
		build: func(g []string, _ time.Time, loc *time.Location) (time.Time, error) {
			return buildDate(loc, g[0], g[1], g[2], g[3], g[4])
		},
	},
	{
		// 2024/12/07 14:30
		name:    "slash-full",
		pattern: regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})[\s\p{Zs}]+(\d{1,2}):(\d{2})`),
		build: func(g []string, _ time.Time, loc *time.Location) (time.Time, error) {
			return buildDate(loc, g[0], g[1], g[2], g[3], g[4])
		},
	},
	{
		// 12月7日(土) 14:30
		// The weekday is matched but not checked against the resulting date.
		name:    "kanji-weekday",
		pattern: regexp.MustCompile(`(\d{1,2})月(\d{1,2})日[（(][日月火水木金土][）)]?[\s\p{Zs}]*(\d{1,2}):(\d{2})`),
		build:   buildCurrentYear,
	},
	{
		// 12月7日 14:30
		name:    "kanji-short",
		pattern: regexp.MustCompile(`(\d{1,2})月(\d{1,2})日[\s\p{Zs}]+(\d{1,2}):(\d{2})`),
		build:   buildCurrentYear,
	},
}

// Extractor finds the first appointment time mentioned in a text
type Extractor struct {
	location *time.Location
}

// New creates an extractor interpreting wall-clock times in loc.
// A nil location means UTC.
func New(loc *time.Location) *Extractor {
	if loc == nil {
		loc = time.UTC
	}
	return &Extractor{location: loc}
}

// Extract returns the appointment time found in text. now supplies the year
// for formats that omit it. The boolean is false when no family matched.
func (e *Extractor) Extract(text string, now time.Time) (time.Time, bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false
	}

	return firstSuccess(families, func(f family) (time.Time, bool) {
		groups := f.pattern.FindStringSubmatch(text)
		if groups == nil {
			return time.Time{}, false
		}

		t, err := f.build(groups[1:], now, e.location)
		if err != nil {
			logrus.WithField("family", f.name).Debugf("Date match rejected, trying next format: %v", err)
			return time.Time{}, false
		}
		return t, true
	})
}

// firstSuccess returns the first successful attempt over items in order
func firstSuccess[T, R any](items []T, attempt func(T) (R, bool)) (R, bool) {
	for _, item := range items {
		if result, ok := attempt(item); ok {
			return result, true
		}
	}
	var zero R
	return zero, false
}

func buildCurrentYear(g []string, now time.Time, loc *time.Location) (time.Time, error) {
	year := strconv.Itoa(now.In(loc).Year())
	return buildDate(loc, year, g[0], g[1], g[2], g[3])
}

// buildDate converts captured components (month 1-12) into a time in loc.
// Components that would make time.Date normalize into a different date are rejected.
func buildDate(loc *time.Location, year, month, day, hour, minute string) (time.Time, error) {
	values := make([]int, 5)
	for i, raw := range []string{year, month, day, hour, minute} {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid number %q: %w", raw, err)
		}
		values[i] = n
	}
	y, mo, d, h, mi := values[0], values[1], values[2], values[3], values[4]

	if mo < 1 || mo > 12 {
		return time.Time{}, fmt.Errorf("month %d out of range", mo)
	}
	if h > 23 || mi > 59 {
		return time.Time{}, fmt.Errorf("time %02d:%02d out of range", h, mi)
	}

	t := time.Date(y, time.Month(mo), d, h, mi, 0, 0, loc)
	if t.Day() != d || t.Month() != time.Month(mo) {
		return time.Time{}, fmt.Errorf("%04d-%02d-%02d is not a calendar date", y, mo, d)
	}
	return t, nil
}
