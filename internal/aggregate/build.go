// Package aggregate turns a resolved profile into rendered schedule views
// and drives batches of profiles.
package aggregate

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	appLog "schedlist/internal/log"
	"schedlist/internal/model"
	"schedlist/internal/profile"
	"schedlist/internal/schedule"
	"schedlist/internal/timetable"
)

// CourseLoader returns the raw records of one course feed.
type CourseLoader interface {
	LoadCourse(ctx context.Context, code, year string) ([]json.RawMessage, error)
}

// Output is everything produced for one profile in one run.
type Output struct {
	Profile    string
	Activities []model.Activity
	Filters    schedule.IDSet
	Views      schedule.Views
	Generated  time.Time
}

// Build loads every course feed named by p in listed order, normalizes and
// sorts the concatenated records, and renders the three views. The first
// fetch or normalization failure aborts the profile.
func Build(ctx context.Context, p *profile.Profile, loader CourseLoader, prefs []string, now time.Time) (*Output, error) {
	var records []json.RawMessage
	for _, c := range p.Courses {
		recs, err := loader.LoadCourse(ctx, c.Code, c.Year)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}

	acts := make([]model.Activity, 0, len(records))
	for i, rec := range records {
		a, err := timetable.Normalize(rec, i, prefs)
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	schedule.Sort(acts)

	filters := schedule.NewIDSet(p.Filter...)
	appLog.Debug("profile aggregated", "profile", p.Name, "courses", len(p.Courses), "activities", len(acts))

	return &Output{
		Profile:    p.Name,
		Activities: acts,
		Filters:    filters,
		Views:      schedule.RenderViews(acts, filters, now),
		Generated:  now,
	}, nil
}
