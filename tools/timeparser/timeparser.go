package timeparser

import (
	"fmt"
	"time"
)

// Layouts accepted for payload timestamps. Layouts without a zone are read as UTC.
var layouts = []string{
	time.RFC3339Nano,      // Standard RFC3339, optional fractional seconds
	"2006-01-02T15:04:05", // ISO-8601 without zone
	"2006-01-02 15:04:05", // SQL-style
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02 15:04:05/01/2006", // DD HH:mm:ss/MM/YYYY
}

// ParseTimestamp attempts to parse a payload timestamp with multiple formats
func ParseTimestamp(dateStr string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, dateStr)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}
