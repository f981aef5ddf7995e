package model

import (
	"strings"
	"time"
)

// Text is a language-keyed bundle of candidate strings as delivered by the
// timetable feed, e.g. {"en": "Lecture", "nl": "Hoorcollege"}.
type Text map[string]string

// Resolve returns the first non-blank (after trimming) value found while
// scanning prefs in order. Missing keys count as blank; a nil bundle or a
// bundle with no usable candidate yields "".
func (t Text) Resolve(prefs []string) string {
	for _, lang := range prefs {
		if v := strings.TrimSpace(t[lang]); v != "" {
			return v
		}
	}
	return ""
}

// ResolveAll resolves every bundle independently, preserving order.
func ResolveAll(bundles []Text, prefs []string) []string {
	out := make([]string, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, b.Resolve(prefs))
	}
	return out
}

// Activity is one scheduled occurrence of a course-related event after
// normalization.
type Activity struct {
	ID string

	Name                     string
	ActivityName             string
	ActivityTypeName         string
	ActivityTypeSyllabusName string

	// Start / End are naive wall-clock values. They are carried in time.UTC
	// only so that formatting never shifts them; no zone conversion applies.
	Start time.Time
	End   time.Time

	Groups    []string
	Locations []string
	Courses   []string
	Staff     []string

	Remarks string
}

// Date returns Start truncated to its calendar day.
func (a Activity) Date() time.Time {
	y, m, d := a.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.Start.Location())
}
