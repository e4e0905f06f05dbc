package timeparser_test

import (
	"testing"
	"time"

	"github.com/septivank/solar-telemetry-worker/tools/timeparser"
)

func TestParseTimestamp_Formats(t *testing.T) {
	expected := time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)

	for _, dateStr := range []string{
		"2025-12-29T10:30:45Z",
		"2025-12-29T10:30:45",
		"2025-12-29 10:30:45",
		"29/12/2025 10:30:45",
		"29 10:30:45/12/2025",
		"2025-12-29T17:30:45+07:00",
	} {
		result, err := timeparser.ParseTimestamp(dateStr)
		if err != nil {
			t.Fatalf("Failed to parse timestamp %q: %v", dateStr, err)
		}

		if !result.Equal(expected) {
			t.Errorf("%q: expected %v, got %v", dateStr, expected, result)
		}
	}
}

func TestParseTimestamp_FractionalSeconds(t *testing.T) {
	result, err := timeparser.ParseTimestamp("2025-12-29T10:30:45.250Z")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2025, 12, 29, 10, 30, 45, 250_000_000, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, dateStr := range []string{"invalid-date-string", "", "1767004245"} {
		if _, err := timeparser.ParseTimestamp(dateStr); err == nil {
			t.Errorf("Expected error for invalid timestamp %q", dateStr)
		}
	}
}

func TestIsWithinTolerance_WithinRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 33, 0, 0, time.UTC) // 3 minutes later

	result := timeparser.IsWithinTolerance(readingTime, receivedTime, 5)
	if !result {
		t.Error("Expected timestamp to be within tolerance")
	}
}

func TestIsWithinTolerance_OutsideRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 36, 0, 0, time.UTC) // 6 minutes later

	result := timeparser.IsWithinTolerance(readingTime, receivedTime, 5)
	if result {
		t.Error("Expected timestamp to be outside tolerance")
	}
}

func TestIsWithinTolerance_NegativeDifference(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 35, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 32, 0, 0, time.UTC) // 3 minutes before

	result := timeparser.IsWithinTolerance(readingTime, receivedTime, 5)
	if !result {
		t.Error("Expected timestamp to be within tolerance (negative difference)")
	}
}

func TestIsWithinTolerance_ExactBoundary(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 35, 0, 0, time.UTC) // Exactly 5 minutes

	result := timeparser.IsWithinTolerance(readingTime, receivedTime, 5)
	if !result {
		t.Error("Expected timestamp at exact boundary to be within tolerance")
	}
}
