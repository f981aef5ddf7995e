package timetable

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"schedlist/internal/model"
)

// flexString accepts a JSON string or number; null decodes to "".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", snippet(b, 40))
	}
	*f = flexString(n.String())
	return nil
}

type namedEntry struct {
	Name model.Text `json:"name"`
}

type rawActivityType struct {
	Name         model.Text `json:"name"`
	SyllabusName *string    `json:"syllabusName"`
}

// RawEvent is one activity record in timetable feed shape.
type RawEvent struct {
	ID           flexString       `json:"id"`
	Name         model.Text       `json:"name"`
	ActivityName model.Text       `json:"activityName"`
	Start        []int            `json:"start"`
	End          []int            `json:"end"`
	ActivityType *rawActivityType `json:"activityType"`
	Groups       []namedEntry     `json:"groups"`
	Locations    []namedEntry     `json:"locationUnits"`
	Courses      []namedEntry     `json:"courses"`
	Staff        []namedEntry     `json:"staff"`
	Remarks      json.RawMessage  `json:"remarks"`
}

// DecodeFeed splits a feed body into its raw records without interpreting
// them, so a single bad record can be reported by position.
func DecodeFeed(body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Normalize converts one raw record into an Activity, resolving every
// multilingual field with prefs. index is only used for error reporting.
func Normalize(record json.RawMessage, index int, prefs []string) (model.Activity, error) {
	var raw RawEvent
	if err := json.Unmarshal(record, &raw); err != nil {
		return model.Activity{}, &MalformedEventError{Index: index, Field: "record", Err: err}
	}
	return normalizeRaw(raw, index, prefs)
}

func normalizeRaw(raw RawEvent, index int, prefs []string) (model.Activity, error) {
	id := string(raw.ID)
	malformed := func(field string, err error) error {
		return &MalformedEventError{Index: index, ID: id, Field: field, Err: err}
	}

	start, err := dateTimeFromComponents(raw.Start)
	if err != nil {
		return model.Activity{}, malformed("start", err)
	}
	end, err := dateTimeFromComponents(raw.End)
	if err != nil {
		return model.Activity{}, malformed("end", err)
	}
	if raw.ActivityType == nil {
		return model.Activity{}, malformed("activityType", errors.New("missing"))
	}
	if raw.ActivityType.SyllabusName == nil {
		return model.Activity{}, malformed("activityType.syllabusName", errors.New("missing"))
	}

	remarks, err := serializeRemarks(raw.Remarks)
	if err != nil {
		return model.Activity{}, malformed("remarks", err)
	}

	return model.Activity{
		ID:                       id,
		Name:                     raw.Name.Resolve(prefs),
		ActivityName:             raw.ActivityName.Resolve(prefs),
		ActivityTypeName:         raw.ActivityType.Name.Resolve(prefs),
		ActivityTypeSyllabusName: strings.TrimSpace(*raw.ActivityType.SyllabusName),
		Start:                    start,
		End:                      end,
		Groups:                   resolveEntries(raw.Groups, prefs),
		Locations:                resolveEntries(raw.Locations, prefs),
		Courses:                  resolveEntries(raw.Courses, prefs),
		Staff:                    resolveEntries(raw.Staff, prefs),
		Remarks:                  remarks,
	}, nil
}

func resolveEntries(entries []namedEntry, prefs []string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name.Resolve(prefs))
	}
	return out
}

// dateTimeFromComponents builds a naive date-time from
// [year, month, day, hour, minute, second, microsecond]; the first three
// are required. Out-of-range components are rejected, never normalized.
func dateTimeFromComponents(c []int) (time.Time, error) {
	if len(c) == 0 {
		return time.Time{}, errors.New("missing")
	}
	if len(c) < 3 || len(c) > 7 {
		return time.Time{}, fmt.Errorf("expected 3 to 7 components, got %d", len(c))
	}

	var parts [7]int
	copy(parts[:], c)
	year, month, day := parts[0], parts[1], parts[2]
	hour, minute, sec, usec := parts[3], parts[4], parts[5], parts[6]

	if year < 1 || year > 9999 {
		return time.Time{}, fmt.Errorf("year %d out of range", year)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || sec < 0 || sec > 59 {
		return time.Time{}, fmt.Errorf("time %02d:%02d:%02d out of range", hour, minute, sec)
	}
	if usec < 0 || usec > 999999 {
		return time.Time{}, fmt.Errorf("microsecond %d out of range", usec)
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, usec*1000, time.UTC)
	if y, m, d := t.Date(); y != year || int(m) != month || d != day {
		return time.Time{}, fmt.Errorf("date %04d-%02d-%02d out of range", year, month, day)
	}
	return t, nil
}

// serializeRemarks renders structured remark data as compact JSON taken
// from the source bytes, so key order, number literals and characters
// pass through unchanged. Empty values (null, false, 0, "", [], {}) yield "".
func serializeRemarks(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	if isEmptyValue(v) {
		return "", nil
	}
	var out bytes.Buffer
	if err := json.Compact(&out, raw); err != nil {
		return "", err
	}
	return out.String(), nil
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}
