package telemetry

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Contract error kinds. Returned errors wrap one of these; test with errors.Is.
var (
	ErrInvalidNumeric        = errors.New("non-finite numeric value")
	ErrPowerFactorOutOfRange = errors.New("power factor outside [-1, 1]")
	ErrMissingIdentifier     = errors.New("missing identifier")
	ErrMalformedTimestamp    = errors.New("malformed timestamp")
	ErrFieldTooLong          = errors.New("field exceeds maximum length")
	ErrInvalidIdentifier     = errors.New("identifier contains NUL byte")
	ErrTooManyPhases         = errors.New("more than three phase readings")

	// ErrDecode matches every structural decode failure.
	ErrDecode         = errors.New("decode error")
	ErrTruncatedInput = errors.New("truncated input")
	ErrTrailingBytes  = errors.New("trailing bytes after payload")
	ErrMalformedField = errors.New("malformed string field")
)

// FieldError ties a contract violation to the field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}

// DecodeError reports a structural failure while parsing the wire layout.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes every DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

var reasons = []struct {
	err   error
	label string
}{
	{ErrInvalidNumeric, "invalid_numeric"},
	{ErrPowerFactorOutOfRange, "power_factor_out_of_range"},
	{ErrMissingIdentifier, "missing_identifier"},
	{ErrMalformedTimestamp, "malformed_timestamp"},
	{ErrFieldTooLong, "field_too_long"},
	{ErrInvalidIdentifier, "invalid_identifier"},
	{ErrTooManyPhases, "too_many_phases"},
	{ErrTruncatedInput, "truncated_input"},
	{ErrTrailingBytes, "trailing_bytes"},
	{ErrMalformedField, "malformed_field"},
	{ErrDecode, "decode_error"},
}

// Reason returns a stable label for a contract error, suitable for metrics and storage.
// Combined errors report the label of their first member.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	if errs := multierr.Errors(err); len(errs) > 1 {
		err = errs[0]
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "unknown"
}
