package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// accepted timestamp layouts, most specific first
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z07:00",
}

// Timestamp parses an ISO 8601 / RFC 3339 datetime with an explicit offset
// and returns it in UTC.
func Timestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: expected RFC 3339, e.g. 2026-03-02T09:00:00Z", raw)
}

// OptionalTimestamp parses raw when it is non-nil.
func OptionalTimestamp(raw *string) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	t, err := Timestamp(*raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ID parses a positive integer identifier.
func ID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
