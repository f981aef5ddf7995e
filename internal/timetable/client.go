package timetable

import (
	"context"
	"net/url"
	"strings"

	"github.com/goccy/go-json"

	appLog "schedlist/internal/log"
)

// CourseURL builds {apiBase}/{year}/activity/by/course/{code}.
func CourseURL(apiBase, code, year string) string {
	return strings.TrimRight(apiBase, "/") + "/" + url.PathEscape(year) + "/activity/by/course/" + url.PathEscape(code)
}

// Client loads course feeds from the timetable API.
type Client struct {
	APIBase string
	Fetcher Fetcher
}

// NewClient constructs a Client.
func NewClient(apiBase string, f Fetcher) *Client {
	return &Client{APIBase: apiBase, Fetcher: f}
}

// LoadCourse fetches one course feed and returns its raw records in feed
// order.
func (c *Client) LoadCourse(ctx context.Context, code, year string) ([]json.RawMessage, error) {
	u := CourseURL(c.APIBase, code, year)

	body, err := c.Fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, &EventFetchError{Course: code, Year: year, URL: u, Err: err}
	}

	records, err := DecodeFeed(body)
	if err != nil {
		return nil, &FeedParseError{URL: u, Err: err}
	}

	appLog.Debug("course feed loaded", "course", code, "year", year, "records", len(records))
	return records, nil
}
