// Package telemetry defines the solar monitoring payload emitted by field devices
// and its validate/encode/decode contract.
//
// All functions in this package are pure and safe for concurrent use. A Payload is a
// value: build it once, then pass it by value through validation and encoding.
package telemetry

import (
	"fmt"
	"time"

	"github.com/septivank/solar-telemetry-worker/tools/timeparser"
)

const (
	// PhaseCount is the fixed number of phase slots in every payload.
	PhaseCount = 3

	// Byte bounds for string fields. The wire format stores each in a 32-byte NUL-padded slot.
	MaxLabelLen      = 31
	MaxMetricNameLen = 31
	MaxTimestampLen  = 31
)

// PhaseReading holds the instantaneous measurements of one electrical phase.
type PhaseReading struct {
	Label       string  `json:"phase_label"`
	Current     float32 `json:"current"`      // A
	Voltage     float32 `json:"voltage"`      // V
	Power       float32 `json:"power"`        // W, negative on export
	Energy      float32 `json:"energy"`       // Wh, cumulative
	Frequency   float32 `json:"frequency"`    // Hz
	PowerFactor float32 `json:"power_factor"` // [-1, 1]
}

// Sentinel returns the placeholder reading used for unwired phase slots.
func Sentinel() PhaseReading {
	return PhaseReading{}
}

// IsSentinel reports whether r is the unwired-slot placeholder: empty label and all zeros.
func (r PhaseReading) IsSentinel() bool {
	return r.Label == "" &&
		r.Current == 0 &&
		r.Voltage == 0 &&
		r.Power == 0 &&
		r.Energy == 0 &&
		r.Frequency == 0 &&
		r.PowerFactor == 0
}

// ReverseFlow reports a negative current, which some installations use to signal export.
func (r PhaseReading) ReverseFlow() bool {
	return !r.IsSentinel() && r.Current < 0
}

// LinkStatus is the device radio state at acquisition time.
type LinkStatus struct {
	SignalStrength  int32  `json:"signal_strength"`
	AcquisitionTime uint64 `json:"acquisition_time"`
}

// SuspectSignal reports a positive signal indicator, which real radios do not produce.
func (l LinkStatus) SuspectSignal() bool {
	return l.SignalStrength > 0
}

// Payload is the unit of transmission from a monitoring device.
type Payload struct {
	Timestamp  string                   `json:"timestamp"`
	MetricName string                   `json:"metric_name"`
	Phases     [PhaseCount]PhaseReading `json:"phases"`
	Link       LinkStatus               `json:"link"`
}

// NewPayload builds a payload from up to three real readings, filling the remaining
// slots with sentinels. The result is not validated.
func NewPayload(timestamp, metricName string, link LinkStatus, phases ...PhaseReading) (Payload, error) {
	if len(phases) > PhaseCount {
		return Payload{}, fmt.Errorf("%w: got %d", ErrTooManyPhases, len(phases))
	}

	p := Payload{
		Timestamp:  timestamp,
		MetricName: metricName,
		Link:       link,
	}
	copy(p.Phases[:], phases)
	return p, nil
}

// ActivePhases returns the number of slots carrying a real measurement.
func (p Payload) ActivePhases() int {
	n := 0
	for _, ph := range p.Phases {
		if !ph.IsSentinel() {
			n++
		}
	}
	return n
}

// TotalPower sums active power across the non-sentinel phases.
func (p Payload) TotalPower() float64 {
	total := 0.0
	for _, ph := range p.Phases {
		if !ph.IsSentinel() {
			total += float64(ph.Power)
		}
	}
	return total
}

// Time parses the payload timestamp.
func (p Payload) Time() (time.Time, error) {
	t, err := timeparser.ParseTimestamp(p.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedTimestamp, err)
	}
	return t, nil
}
