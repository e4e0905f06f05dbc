package telemetry

import (
	"fmt"
	"math"
	"time"
)

// AcquisitionClock fixes how LinkStatus.AcquisitionTime is read in a deployment.
// The wire format does not carry it.
type AcquisitionClock string

const (
	ClockUptimeMillis AcquisitionClock = "uptime_ms"
	ClockEpochMillis  AcquisitionClock = "epoch_ms"
	ClockEpochSeconds AcquisitionClock = "epoch_s"
)

// ParseAcquisitionClock validates a configured clock name.
func ParseAcquisitionClock(s string) (AcquisitionClock, error) {
	switch c := AcquisitionClock(s); c {
	case ClockUptimeMillis, ClockEpochMillis, ClockEpochSeconds:
		return c, nil
	}
	return "", fmt.Errorf("unknown acquisition clock %q (want uptime_ms, epoch_ms or epoch_s)", s)
}

// IsEpoch reports whether acquisition times are absolute.
func (c AcquisitionClock) IsEpoch() bool {
	return c == ClockEpochMillis || c == ClockEpochSeconds
}

// Wall converts an acquisition time to wall-clock time. It returns false for uptime
// clocks and for values that do not fit a time.Time.
func (c AcquisitionClock) Wall(acq uint64) (time.Time, bool) {
	switch c {
	case ClockEpochMillis:
		if acq > math.MaxInt64 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(acq)).UTC(), true
	case ClockEpochSeconds:
		if acq > math.MaxInt64 {
			return time.Time{}, false
		}
		return time.Unix(int64(acq), 0).UTC(), true
	}
	return time.Time{}, false
}

// Uptime returns the device uptime for uptime clocks.
func (c AcquisitionClock) Uptime(acq uint64) (time.Duration, bool) {
	if c != ClockUptimeMillis || acq > math.MaxInt64/uint64(time.Millisecond) {
		return 0, false
	}
	return time.Duration(acq) * time.Millisecond, true
}
