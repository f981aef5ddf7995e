// Package profile loads profile definitions and resolves remote profile
// indirection.
package profile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	appLog "schedlist/internal/log"
)

// Fetcher retrieves the raw bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Course is one (course code, year) pair. It decodes from a two element JSON
// array whose members may be strings or numbers.
type Course struct {
	Code string
	Year string
}

func (c *Course) UnmarshalJSON(b []byte) error {
	var pair []flexString
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("course entry must be [code, year], got %d elements", len(pair))
	}
	c.Code, c.Year = string(pair[0]), string(pair[1])
	return nil
}

// Profile selects the course feeds to aggregate and the activity ids hidden
// from the filtered view.
type Profile struct {
	Name    string
	Courses []Course
	Filter  []string
}

type document struct {
	Courses    *[]Course    `json:"courses"`
	Filter     []flexString `json:"filter"`
	Source     *string      `json:"source"`
	Delimiters []string     `json:"delimiters"`
}

// NameFromPath derives a profile name from its file path: the base name
// without the .json extension.
func NameFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// Load reads the profile file at path and resolves it.
func Load(ctx context.Context, path string, f Fetcher) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := Resolve(ctx, data, f)
	if err != nil {
		return nil, err
	}
	p.Name = NameFromPath(path)
	return p, nil
}

// Resolve parses profile bytes. When the document names a source, the
// source is fetched and its content (optionally carved out between
// delimiters) replaces the local document entirely.
func Resolve(ctx context.Context, data []byte, f Fetcher) (*Profile, error) {
	var outer document
	if err := json.Unmarshal(data, &outer); err != nil {
		return nil, &ProfileParseError{Stage: StageOuter, Err: err}
	}
	if outer.Source == nil {
		return outer.profile(StageOuter)
	}

	src := *outer.Source
	if f == nil {
		return nil, &ProfileFetchError{URL: src, Err: errors.New("no fetcher configured")}
	}

	var start, end string
	if outer.Delimiters != nil {
		if len(outer.Delimiters) != 2 || outer.Delimiters[0] == "" || outer.Delimiters[1] == "" {
			return nil, &ProfileParseError{Stage: StageOuter, Err: errors.New("delimiters must be two non-empty strings")}
		}
		start, end = outer.Delimiters[0], outer.Delimiters[1]
	}

	body, err := f.Fetch(ctx, src)
	if err != nil {
		return nil, &ProfileFetchError{URL: src, Err: err}
	}
	if start != "" {
		body = Extract(body, start, end)
	}
	appLog.Debug("profile source resolved", "bytes", len(body), "delimited", start != "")

	var inner document
	if err := json.Unmarshal(body, &inner); err != nil {
		return nil, &ProfileParseError{Stage: StageExtracted, Err: err}
	}
	return inner.profile(StageExtracted)
}

// Extract returns the bytes strictly between the first start marker and the
// first end marker after it. A missing start yields nothing; a missing end
// yields everything after start.
func Extract(body []byte, start, end string) []byte {
	_, after, found := bytes.Cut(body, []byte(start))
	if !found {
		return nil
	}
	before, _, _ := bytes.Cut(after, []byte(end))
	return before
}

func (d document) profile(stage string) (*Profile, error) {
	if d.Courses == nil {
		return nil, &ProfileParseError{Stage: stage, Err: errors.New(`missing "courses"`)}
	}
	p := &Profile{
		Courses: *d.Courses,
		Filter:  make([]string, 0, len(d.Filter)),
	}
	for _, id := range d.Filter {
		p.Filter = append(p.Filter, string(id))
	}
	return p, nil
}
