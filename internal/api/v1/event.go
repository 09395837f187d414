package v1

import (
	"fmt"
	"time"
)

// Recognized event names. The Event field is an open string: anything else is
// accepted on the wire and counted by the pipeline, but only login events
// mutate aggregation state.
const (
	EventLogin   = "login"
	EventOpenApp = "open_app"
	EventSetRole = "set_role"
)

// LogEvent is the atomic unit of ingestion: one JSON object per line in a log
// source. user_id, device_id and role_id are optional depending on the event.
type LogEvent struct {
	Event     string `json:"event"`
	UserID    string `json:"user_id,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
	Timestamp string `json:"timestamp"`
	RoleID    string `json:"role_id,omitempty"`
}

// DateKeyLayout is the calendar-day bucket format used everywhere metrics are
// keyed by date.
const DateKeyLayout = "2006-01-02"

// Accepted timestamp shapes, tried in order. RFC3339Nano covers offsets and
// fractional seconds; the bare layouts cover timestamps written without a zone,
// which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// DateKeyFromTimestamp derives the calendar-day bucket for an event timestamp.
// Bucketing policy: timestamps are truncated to the UTC calendar day.
func DateKeyFromTimestamp(ts string) (string, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, ts, time.UTC); err == nil {
			return t.UTC().Format(DateKeyLayout), nil
		}
	}
	return "", fmt.Errorf("unparseable timestamp %q", ts)
}

// ParseDateKey parses a YYYY-MM-DD date key into a UTC day.
func ParseDateKey(date string) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", date, err)
	}
	return t, nil
}
