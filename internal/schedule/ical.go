package schedule

import (
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"schedlist/internal/model"
)

// floatingLayout writes DATE-TIME values without a zone ("floating" time),
// matching the naive timestamps delivered by the feed.
const floatingLayout = "20060102T150405"

// EncodeICS serializes activities as an iCalendar document, skipping ids in
// filters. Past activities are kept so subscribed calendars retain history.
func EncodeICS(name string, acts []model.Activity, filters IDSet, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//schedlist//timetable//EN")
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for i, a := range acts {
		if filters.Has(a.ID) {
			continue
		}

		uid := a.ID
		if uid == "" {
			uid = "idx-" + strconv.Itoa(i) + "-" + a.Start.Format(floatingLayout)
		}
		ev := cal.AddEvent(uid + "@schedlist")
		ev.SetDtStampTime(now.UTC())
		ev.SetProperty(ical.ComponentPropertyDtStart, a.Start.Format(floatingLayout))
		ev.SetProperty(ical.ComponentPropertyDtEnd, a.End.Format(floatingLayout))
		ev.SetSummary(summary(a))
		if len(a.Locations) > 0 {
			ev.SetLocation(strings.Join(a.Locations, ", "))
		}
		if desc := description(a); desc != "" {
			ev.SetDescription(desc)
		}
	}

	return cal.Serialize()
}

func summary(a model.Activity) string {
	s := strings.TrimSpace(a.Name + " " + a.ActivityName)
	if a.ActivityTypeName != "" {
		s += " (" + a.ActivityTypeName + ")"
	}
	return s
}

func description(a model.Activity) string {
	var lines []string
	if len(a.Groups) > 0 {
		lines = append(lines, "Groups: "+strings.Join(a.Groups, ", "))
	}
	if len(a.Staff) > 0 {
		lines = append(lines, "Staff: "+strings.Join(a.Staff, ", "))
	}
	if len(a.Courses) > 0 {
		lines = append(lines, "Courses: "+strings.Join(a.Courses, ", "))
	}
	if a.Remarks != "" {
		lines = append(lines, "Remarks: "+a.Remarks)
	}
	return strings.Join(lines, "\n")
}
