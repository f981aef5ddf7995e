package timetable

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_conditionalGet(t *testing.T) {
	var hits, conditional int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			atomic.AddInt32(&conditional, 1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`[{"id":"ev1"}]`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(t.TempDir(), 5*time.Second, false)

	first, err := f.Fetch(context.Background(), srv.URL+"/2024/activity/by/course/X")
	require.NoError(t, err)
	second, err := f.Fetch(context.Background(), srv.URL+"/2024/activity/by/course/X")
	require.NoError(t, err)

	assert.Equal(t, `[{"id":"ev1"}]`, string(first))
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int32(1), atomic.LoadInt32(&conditional))
}

func TestHTTPFetcher_non2xxIsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such course", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher("", time.Second, false)

	_, err := f.Fetch(context.Background(), srv.URL+"/feed")

	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
	assert.Contains(t, herr.Error(), "status=404")
}

func TestHTTPFetcher_allowStale(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	url := srv.URL + "/feed"

	_, err := NewHTTPFetcher(dir, time.Second, true).Fetch(context.Background(), url)
	require.NoError(t, err)

	fail.Store(true)
	body, err := NewHTTPFetcher(dir, time.Second, true).Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))

	_, err = NewHTTPFetcher(dir, time.Second, false).Fetch(context.Background(), url)
	require.Error(t, err)
}

func TestHTTPFetcher_emptyURL(t *testing.T) {
	_, err := NewHTTPFetcher("", 0, false).Fetch(context.Background(), "")
	require.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://rooster.rug.nl/...(redacted)", redactURL("https://rooster.rug.nl/api/2024/activity/by/course/X?token=abc"))
	assert.Equal(t, "url://...(redacted)", redactURL("not a url"))
}
