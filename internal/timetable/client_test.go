package timetable

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	body, ok := m[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(body), nil
}

func TestCourseURL(t *testing.T) {
	assert.Equal(t,
		"https://rooster.rug.nl/api/2024/activity/by/course/WBCS001-05",
		CourseURL("https://rooster.rug.nl/api/", "WBCS001-05", "2024"))
	assert.Equal(t,
		"http://x/api/2024/activity/by/course/A%2FB",
		CourseURL("http://x/api", "A/B", "2024"))
}

func TestClientLoadCourse(t *testing.T) {
	c := NewClient("http://api", mapFetcher{
		"http://api/2024/activity/by/course/GOOD": `[{"id":"a"},{"id":"b"}]`,
		"http://api/2024/activity/by/course/BAD":  `<html>maintenance</html>`,
	})

	records, err := c.LoadCourse(context.Background(), "GOOD", "2024")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = c.LoadCourse(context.Background(), "BAD", "2024")
	var perr *FeedParseError
	require.True(t, errors.As(err, &perr))

	_, err = c.LoadCourse(context.Background(), "MISSING", "2024")
	var ferr *EventFetchError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, "MISSING", ferr.Course)
	assert.Equal(t, "2024", ferr.Year)
}
