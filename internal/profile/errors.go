package profile

import (
	"bytes"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
)

const (
	StageOuter     = "outer"
	StageExtracted = "extracted"
)

// ProfileFetchError reports a transport failure reaching a profile source.
type ProfileFetchError struct {
	URL string
	Err error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("fetch profile source %s: %v", hostOnly(e.URL), e.Err)
}

func (e *ProfileFetchError) Unwrap() error { return e.Err }

// ProfileParseError reports profile content that is not a valid profile
// document. Stage tells whether the local file or the extracted remote
// content was at fault.
type ProfileParseError struct {
	Stage string
	Err   error
}

func (e *ProfileParseError) Error() string {
	return fmt.Sprintf("parse %s profile: %v", e.Stage, e.Err)
}

func (e *ProfileParseError) Unwrap() error { return e.Err }

func hostOnly(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}
