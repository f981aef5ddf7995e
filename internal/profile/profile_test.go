package profile_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedlist/internal/profile"
)

type mapFetcher struct {
	bodies map[string][]byte
	calls  []string
}

func (m *mapFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	m.calls = append(m.calls, url)
	b, ok := m.bodies[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return b, nil
}

func TestResolve_local(t *testing.T) {
	data := []byte(`{"courses":[["WBCS001-05","2024"],["WBMA003-05",2024]],"filter":["a1",17]}`)

	p, err := profile.Resolve(context.Background(), data, nil)
	require.NoError(t, err)

	assert.Equal(t, []profile.Course{
		{Code: "WBCS001-05", Year: "2024"},
		{Code: "WBMA003-05", Year: "2024"},
	}, p.Courses)
	assert.Equal(t, []string{"a1", "17"}, p.Filter)
}

func TestResolve_sourceWithDelimiters(t *testing.T) {
	f := &mapFetcher{bodies: map[string][]byte{
		"https://example.org/page": []byte(`junk<<<{"courses":[]}>>>more`),
	}}
	data := []byte(`{"source":"https://example.org/page","delimiters":["<<<",">>>"],"courses":[["IGNORED","1"]]}`)

	p, err := profile.Resolve(context.Background(), data, f)
	require.NoError(t, err)

	assert.Empty(t, p.Courses)
	assert.Empty(t, p.Filter)
	assert.Equal(t, []string{"https://example.org/page"}, f.calls)
}

func TestResolve_sourceWithoutDelimiters(t *testing.T) {
	f := &mapFetcher{bodies: map[string][]byte{
		"https://example.org/p.json": []byte(`{"courses":[["C1","2023"]],"filter":["x"]}`),
	}}

	p, err := profile.Resolve(context.Background(), []byte(`{"source":"https://example.org/p.json"}`), f)
	require.NoError(t, err)

	assert.Equal(t, []profile.Course{{Code: "C1", Year: "2023"}}, p.Courses)
	assert.Equal(t, []string{"x"}, p.Filter)
}

func TestResolve_missingEndDelimiterTakesRemainder(t *testing.T) {
	f := &mapFetcher{bodies: map[string][]byte{
		"https://example.org/page": []byte(`<pre>{"courses":[["C1","2023"]]}`),
	}}
	data := []byte(`{"source":"https://example.org/page","delimiters":["<pre>","</pre>"]}`)

	p, err := profile.Resolve(context.Background(), data, f)
	require.NoError(t, err)
	assert.Len(t, p.Courses, 1)
}

func TestResolve_missingStartDelimiterIsParseError(t *testing.T) {
	f := &mapFetcher{bodies: map[string][]byte{
		"https://example.org/page": []byte(`{"courses":[]}`),
	}}
	data := []byte(`{"source":"https://example.org/page","delimiters":["<<<",">>>"]}`)

	_, err := profile.Resolve(context.Background(), data, f)

	var perr *profile.ProfileParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, profile.StageExtracted, perr.Stage)
}

func TestResolve_errors(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		stage string
		fetch bool
	}{
		{name: "outer not json", data: `{not json`, stage: profile.StageOuter},
		{name: "missing courses", data: `{"filter":[]}`, stage: profile.StageOuter},
		{name: "bad course pair", data: `{"courses":[["only-code"]]}`, stage: profile.StageOuter},
		{name: "bad delimiters", data: `{"source":"https://example.org/page","delimiters":["<<<"]}`, stage: profile.StageOuter},
		{name: "extracted not json", data: `{"source":"https://example.org/html"}`, stage: profile.StageExtracted},
		{name: "unreachable source", data: `{"source":"https://example.org/missing"}`, fetch: true},
	}

	f := &mapFetcher{bodies: map[string][]byte{
		"https://example.org/page": []byte(`x`),
		"https://example.org/html": []byte(`<html></html>`),
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := profile.Resolve(context.Background(), []byte(tt.data), f)
			require.Error(t, err)

			if tt.fetch {
				var ferr *profile.ProfileFetchError
				require.ErrorAs(t, err, &ferr)
				assert.Equal(t, "https://example.org/missing", ferr.URL)
				assert.NotContains(t, ferr.Error(), "/missing")
				return
			}
			var perr *profile.ProfileParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.stage, perr.Stage)
		})
	}
}

func TestExtract(t *testing.T) {
	assert.Equal(t, `{"a":1}`, string(profile.Extract([]byte(`xx[[{"a":1}]]yy]]`), "[[", "]]")))
	assert.Equal(t, `rest`, string(profile.Extract([]byte(`a<rest`), "<", ">")))
	assert.Empty(t, profile.Extract([]byte(`abc`), "<", ">"))
	// The end marker is searched only after the start marker.
	assert.Equal(t, `b`, string(profile.Extract([]byte(`>a<b>`), "<", ">")))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cs-year1.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"courses":[["C1","2024"]],"filter":[]}`), 0o600))

	p, err := profile.Load(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, "cs-year1", p.Name)
	assert.Len(t, p.Courses, 1)

	_, err = profile.Load(context.Background(), filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNameFromPath(t *testing.T) {
	assert.Equal(t, "a", profile.NameFromPath("profiles/a.json"))
	assert.Equal(t, "b.txt", profile.NameFromPath("/x/b.txt"))
}
