package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Wire layout, big-endian, fixed size:
//
//	0    timestamp        [32]byte NUL-padded
//	32   metric_name      [32]byte NUL-padded
//	64   phases[0..2]     3 x 56 bytes
//	       label          [32]byte NUL-padded
//	       current, voltage, power, energy, frequency, power_factor  6 x float32
//	232  signal_strength  int32
//	236  acquisition_time uint64
const (
	stringSlotSize = 32
	phaseSize      = stringSlotSize + 6*4
	linkSize       = 4 + 8

	timestampOffset = 0
	metricOffset    = timestampOffset + stringSlotSize
	phasesOffset    = metricOffset + stringSlotSize
	linkOffset      = phasesOffset + PhaseCount*phaseSize

	// EncodedSize is the exact length of every encoded payload.
	EncodedSize = linkOffset + linkSize
)

var order = binary.BigEndian

// Encode validates p and returns its wire form. Over-long or NUL-containing strings fail
// with ErrFieldTooLong or ErrInvalidIdentifier; they are never truncated.
func Encode(p Payload) ([]byte, error) {
	b, err := AppendEncode(make([]byte, 0, EncodedSize), p)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AppendEncode is like Encode but appends to dst. On error dst is returned unchanged.
func AppendEncode(dst []byte, p Payload) ([]byte, error) {
	if err := checkBounds(p); err != nil {
		return dst, err
	}
	if err := Validate(p); err != nil {
		return dst, err
	}

	start := len(dst)
	dst = append(dst, make([]byte, EncodedSize)...)
	buf := dst[start:]

	putString(buf[timestampOffset:], p.Timestamp)
	putString(buf[metricOffset:], p.MetricName)
	for i, ph := range p.Phases {
		off := phasesOffset + i*phaseSize
		putString(buf[off:], ph.Label)
		off += stringSlotSize
		for _, f := range ph.numericFields() {
			order.PutUint32(buf[off:], math.Float32bits(f.value))
			off += 4
		}
	}
	order.PutUint32(buf[linkOffset:], uint32(p.Link.SignalStrength))
	order.PutUint64(buf[linkOffset+4:], p.Link.AcquisitionTime)

	return dst, nil
}

// Decode parses a wire payload and validates it. Structural failures are *DecodeError
// values matching ErrDecode; contract failures are returned exactly as Validate reports them.
func Decode(b []byte) (Payload, error) {
	p, err := Parse(b)
	if err != nil {
		return Payload{}, err
	}
	if err := Validate(p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Parse reads the wire layout without validating the result. Callers must run Validate
// or ValidateAll before trusting the payload.
func Parse(b []byte) (Payload, error) {
	if len(b) < EncodedSize {
		return Payload{}, &DecodeError{
			Offset: len(b),
			Err:    fmt.Errorf("%w: need %d bytes, got %d", ErrTruncatedInput, EncodedSize, len(b)),
		}
	}
	if len(b) > EncodedSize {
		return Payload{}, &DecodeError{
			Offset: EncodedSize,
			Err:    fmt.Errorf("%w: %d extra", ErrTrailingBytes, len(b)-EncodedSize),
		}
	}

	var (
		p   Payload
		err error
	)
	if p.Timestamp, err = readString(b, timestampOffset); err != nil {
		return Payload{}, err
	}
	if p.MetricName, err = readString(b, metricOffset); err != nil {
		return Payload{}, err
	}
	for i := range p.Phases {
		off := phasesOffset + i*phaseSize
		ph := &p.Phases[i]
		if ph.Label, err = readString(b, off); err != nil {
			return Payload{}, err
		}
		off += stringSlotSize
		for _, dst := range []*float32{&ph.Current, &ph.Voltage, &ph.Power, &ph.Energy, &ph.Frequency, &ph.PowerFactor} {
			*dst = math.Float32frombits(order.Uint32(b[off:]))
			off += 4
		}
	}
	p.Link.SignalStrength = int32(order.Uint32(b[linkOffset:]))
	p.Link.AcquisitionTime = order.Uint64(b[linkOffset+4:])

	return p, nil
}

func checkBounds(p Payload) error {
	check := func(field, s string, max int) error {
		if len(s) > max {
			return fieldErr(field, fmt.Errorf("%w: %d bytes, max %d", ErrFieldTooLong, len(s), max))
		}
		if strings.IndexByte(s, 0) >= 0 {
			return fieldErr(field, ErrInvalidIdentifier)
		}
		return nil
	}

	if err := check("timestamp", p.Timestamp, MaxTimestampLen); err != nil {
		return err
	}
	if err := check("metric_name", p.MetricName, MaxMetricNameLen); err != nil {
		return err
	}
	for i, ph := range p.Phases {
		if err := check(phaseField(i, "phase_label"), ph.Label, MaxLabelLen); err != nil {
			return err
		}
	}
	return nil
}

func putString(dst []byte, s string) {
	copy(dst[:stringSlotSize-1], s)
}

// readString reads a NUL-terminated slot. Padding after the terminator must be zero so
// that every payload has exactly one encoding.
func readString(b []byte, off int) (string, error) {
	slot := b[off : off+stringSlotSize]
	n := bytes.IndexByte(slot, 0)
	if n < 0 {
		return "", &DecodeError{Offset: off, Err: fmt.Errorf("%w: missing terminator", ErrMalformedField)}
	}
	for i := n + 1; i < len(slot); i++ {
		if slot[i] != 0 {
			return "", &DecodeError{Offset: off + i, Err: fmt.Errorf("%w: non-zero padding", ErrMalformedField)}
		}
	}
	return string(slot[:n]), nil
}
