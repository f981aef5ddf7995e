package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"schedlist/internal/model"
)

const (
	clockLayout  = "15:04"
	headerLayout = "Mon, 02/01/06"
	footerLayout = "2006-01-02 15:04:05"
)

// Options parameterizes one list render.
type Options struct {
	// ShowID appends the activity id to every line.
	ShowID bool
	// HideOld skips activities dated strictly before Now's calendar date.
	HideOld bool
	// Filters lists ids that are never rendered.
	Filters IDSet
	// Now is the render time: it supplies "today" and the footer stamp.
	Now time.Time
}

// Views are the three published renders of one profile.
type Views struct {
	Full     string
	Edit     string
	Filtered string
}

// RenderViews runs the full, edit and filtered renders over the same
// sorted activities.
func RenderViews(acts []model.Activity, filters IDSet, now time.Time) Views {
	return Views{
		Full:     RenderList(acts, Options{Filters: IDSet{}, Now: now}),
		Edit:     RenderList(acts, Options{ShowID: true, Filters: IDSet{}, Now: now}),
		Filtered: RenderList(acts, Options{HideOld: true, Filters: filters, Now: now}),
	}
}

// RenderList renders sorted activities as text grouped by day, with a
// separator line whenever the ISO week number changes, followed by a
// "Last Updated" footer.
func RenderList(acts []model.Activity, opts Options) string {
	var b strings.Builder

	ny, nm, nd := opts.Now.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)

	// The zero time is 0001-01-01, which precedes every feed date.
	var lastDate time.Time
	_, lastWeek := lastDate.ISOWeek()

	for _, a := range acts {
		date := a.Date()
		if opts.Filters.Has(a.ID) {
			continue
		}
		if opts.HideOld && civilBefore(date, today) {
			continue
		}

		if !sameDay(date, lastDate) {
			_, week := date.ISOWeek()
			if week != lastWeek {
				b.WriteString("\n---------------- Week ")
				b.WriteString(strconv.Itoa(week))
			}
			b.WriteString("\n  ")
			b.WriteString(date.Format(headerLayout))
			b.WriteString("\n")
			lastDate, lastWeek = date, week
		}

		b.WriteString(formatLine(a))
		if opts.ShowID {
			b.WriteString("  ")
			b.WriteString(a.ID)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n\nLast Updated: ")
	b.WriteString(footerStamp(opts.Now))
	b.WriteString(" UTC")
	return b.String()
}

// footerStamp formats t in UTC with a six digit fraction, dropped when the
// microsecond part is zero.
func footerStamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format(footerLayout)
	}
	return t.Format(footerLayout + ".000000")
}

func formatLine(a model.Activity) string {
	locations := make([]string, 0, len(a.Locations))
	for _, l := range a.Locations {
		locations = append(locations, "["+l+"]")
	}
	return fmt.Sprintf("%s-%s  %s %s  %s  %s  %s %s",
		a.Start.Format(clockLayout),
		a.End.Format(clockLayout),
		a.Name,
		a.ActivityName,
		a.ActivityTypeName,
		strings.Join(locations, " "),
		strings.Join(a.Groups, ", "),
		a.Remarks,
	)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// civilBefore compares calendar dates only, ignoring zones.
func civilBefore(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
