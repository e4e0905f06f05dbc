package telemetry

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Validate checks p against the payload contract and returns the first violation.
//
// Precedence is fixed: non-finite numbers, then power factor range, then missing
// identifiers, then the timestamp. Sentinel slots are exempt from the identifier and
// power factor checks.
func Validate(p Payload) error {
	if errs := problems(p, true); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ValidateAll returns every violation in p combined into one error, in the same order
// Validate would report them.
func ValidateAll(p Payload) error {
	return multierr.Combine(problems(p, false)...)
}

func problems(p Payload, first bool) []error {
	var errs []error
	add := func(err error) bool {
		errs = append(errs, err)
		return first
	}

	for i, ph := range p.Phases {
		for _, f := range ph.numericFields() {
			if !isFinite(f.value) {
				if add(fieldErr(phaseField(i, f.name), ErrInvalidNumeric)) {
					return errs
				}
			}
		}
	}

	for i, ph := range p.Phases {
		if ph.IsSentinel() || !isFinite(ph.PowerFactor) {
			continue
		}
		if ph.PowerFactor < -1 || ph.PowerFactor > 1 {
			err := fmt.Errorf("%w: %g", ErrPowerFactorOutOfRange, ph.PowerFactor)
			if add(fieldErr(phaseField(i, "power_factor"), err)) {
				return errs
			}
		}
	}

	if p.MetricName == "" {
		if add(fieldErr("metric_name", ErrMissingIdentifier)) {
			return errs
		}
	}
	for i, ph := range p.Phases {
		if ph.Label == "" && !ph.IsSentinel() {
			if add(fieldErr(phaseField(i, "phase_label"), ErrMissingIdentifier)) {
				return errs
			}
		}
	}

	if _, err := p.Time(); err != nil {
		add(fieldErr("timestamp", err))
	}

	return errs
}

type numericField struct {
	name  string
	value float32
}

func (r PhaseReading) numericFields() [6]numericField {
	return [6]numericField{
		{"current", r.Current},
		{"voltage", r.Voltage},
		{"power", r.Power},
		{"energy", r.Energy},
		{"frequency", r.Frequency},
		{"power_factor", r.PowerFactor},
	}
}

func phaseField(i int, name string) string {
	return fmt.Sprintf("phases[%d].%s", i, name)
}

func isFinite(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
