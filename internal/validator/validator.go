package validator

import (
	"fmt"
	"math"
	"time"

	"github.com/septivank/solar-telemetry-worker/internal/telemetry"
	"github.com/septivank/solar-telemetry-worker/tools/timeparser"
)

// Flag marks a condition that is valid data but needs consumer interpretation
type Flag string

const (
	FlagReverseFlow             Flag = "reverse_flow"
	FlagFrequencyOutOfTolerance Flag = "frequency_out_of_tolerance"
	FlagSuspectSignal           Flag = "suspect_signal"
	FlagAcquisitionClockSkew    Flag = "acquisition_clock_skew"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid       bool
	AnomalyReason string
	Flags         []Flag
}

// HasFlag reports whether f was raised
func (r ValidationResult) HasFlag(f Flag) bool {
	for _, have := range r.Flags {
		if have == f {
			return true
		}
	}
	return false
}

// Validator evaluates decoded payloads against deployment settings
type Validator struct {
	timestampToleranceMinutes int
	nominalFrequency          float64
	frequencyTolerance        float64
	clock                     telemetry.AcquisitionClock
}

// NewValidator creates a new validator for one deployment
func NewValidator(timestampToleranceMinutes int, nominalFrequency, frequencyTolerance float64, clock telemetry.AcquisitionClock) *Validator {
	return &Validator{
		timestampToleranceMinutes: timestampToleranceMinutes,
		nominalFrequency:          nominalFrequency,
		frequencyTolerance:        frequencyTolerance,
		clock:                     clock,
	}
}

// Evaluate checks a payload against the contract and the deployment's receipt window,
// and raises advisory flags. It returns the parsed payload time, or the zero time if
// the timestamp could not be parsed.
func (v *Validator) Evaluate(p telemetry.Payload, receivedAt time.Time) (time.Time, ValidationResult) {
	result := ValidationResult{IsValid: true}

	if err := telemetry.Validate(p); err != nil {
		result.IsValid = false
		result.AnomalyReason = err.Error()
		readingTime, _ := timeparser.ParseTimestamp(p.Timestamp)
		return readingTime, result
	}

	// Validate already proved the timestamp parses
	readingTime, _ := p.Time()

	result.Flags = v.flags(p, readingTime)

	// Validate timestamp tolerance
	if !timeparser.IsWithinTolerance(readingTime, receivedAt, v.timestampToleranceMinutes) {
		result.IsValid = false
		result.AnomalyReason = fmt.Sprintf("timestamp outside tolerance window (±%d minutes)", v.timestampToleranceMinutes)
	}

	return readingTime, result
}

func (v *Validator) flags(p telemetry.Payload, readingTime time.Time) []Flag {
	var flags []Flag
	raise := func(f Flag) {
		for _, have := range flags {
			if have == f {
				return
			}
		}
		flags = append(flags, f)
	}

	for _, ph := range p.Phases {
		if ph.IsSentinel() {
			continue
		}
		if ph.ReverseFlow() {
			raise(FlagReverseFlow)
		}
		if v.frequencyTolerance > 0 && math.Abs(float64(ph.Frequency)-v.nominalFrequency) > v.frequencyTolerance {
			raise(FlagFrequencyOutOfTolerance)
		}
	}

	if p.Link.SuspectSignal() {
		raise(FlagSuspectSignal)
	}

	if wall, ok := v.clock.Wall(p.Link.AcquisitionTime); ok {
		if !timeparser.IsWithinTolerance(wall, readingTime, v.timestampToleranceMinutes) {
			raise(FlagAcquisitionClockSkew)
		}
	}

	return flags
}
