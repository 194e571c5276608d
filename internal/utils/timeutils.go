package utils

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are the timestamp shapes found in exported test registries.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
	"02.01.2006",
	"01/02/2006",
}

// ParseDate accepts RFC3339 or one of the common spreadsheet date layouts.
// An empty value yields the zero time without error.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time: unrecognised date %q", value)
}

// FormatDate renders t as a calendar date, or "" for the zero time.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
