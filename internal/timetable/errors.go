package timetable

import (
	"fmt"
	"net/http"
	"strings"
)

// MalformedEventError reports a raw event that lacks (or carries an unusable)
// required temporal or syllabus field. Index is the position of the record in
// the concatenated feed sequence.
type MalformedEventError struct {
	Index int
	ID    string
	Field string
	Err   error
}

func (e *MalformedEventError) Error() string {
	id := e.ID
	if id == "" {
		id = "?"
	}
	return fmt.Sprintf("malformed event #%d (id=%s) field=%s: %v", e.Index, id, e.Field, e.Err)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// EventFetchError reports a transport failure reaching a course feed.
type EventFetchError struct {
	Course string
	Year   string
	URL    string
	Err    error
}

func (e *EventFetchError) Error() string {
	return fmt.Sprintf("fetch events for %s/%s: %v", e.Course, e.Year, e.Err)
}

func (e *EventFetchError) Unwrap() error { return e.Err }

// FeedParseError reports a course feed body that is not a JSON array.
type FeedParseError struct {
	URL string
	Err error
}

func (e *FeedParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", redactURL(e.URL), e.Err)
}

func (e *FeedParseError) Unwrap() error { return e.Err }

// HTTPError carries status/body for non-2xx responses.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, redactURL(e.URL), e.StatusCode, snippet(e.Body, 300))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
