package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// preambleLen is the "#9" block marker.
	preambleLen = 2
	// headerLen is the preamble plus the 9-digit byte count.
	headerLen = 11
)

var (
	// ErrMalformedHeader is returned when a waveform block header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed waveform header")
	// ErrTruncatedPayload is returned when a waveform block ends before its declared length.
	ErrTruncatedPayload = errors.New("truncated waveform payload")
	// ErrBadValue is returned when a reply value cannot be parsed.
	ErrBadValue = errors.New("bad reply value")
)

// Error describes a reply that could not be decoded.
type Error struct {
	Kind  error  // one of ErrMalformedHeader, ErrTruncatedPayload, ErrBadValue
	Reply string // offending reply, shortened
	Err   error  // underlying parse error, if any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s in reply %q", e.Kind.Error(), e.Reply)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying parse error to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, reply string, err error) *Error {
	const maxReply = 48
	if len(reply) > maxReply {
		reply = reply[:maxReply] + "..."
	}
	return &Error{Kind: kind, Reply: reply, Err: err}
}

// ParseBool parses boolean-as-integer replies ("1"/"0"). "ON"/"OFF" are accepted as well.
func ParseBool(reply string) (bool, error) {
	switch strings.ToUpper(strings.TrimSpace(reply)) {
	case "1", "ON":
		return true, nil
	case "0", "OFF":
		return false, nil
	}
	return false, newError(ErrBadValue, reply, nil)
}

// ParseFloat parses a numeric reply such as "2.000000E-09".
func ParseFloat(reply string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		return 0, newError(ErrBadValue, reply, err)
	}
	return v, nil
}

// ParseCount parses an integer reply. Instruments sometimes report counts in
// scientific notation, so the value is parsed as a float and rounded.
func ParseCount(reply string) (int, error) {
	v, err := ParseFloat(reply)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newError(ErrBadValue, reply, nil)
	}
	return int(math.Round(v)), nil
}

// DecodeWaveform decodes the reply to :WAV:DATA? in ASCII format.
//
// Format: "#9" + 9-digit byte count + comma separated values, each value
// followed by a comma. Example: "#9000000016" + "1.0,2.0,3.0,4.0,".
//
// If fewer bytes than declared arrive the payload is accepted only when it
// still ends on a value terminator and the shortfall is no wider than one
// value field. Anything shorter lost values in transit.
func DecodeWaveform(reply string) ([]float64, error) {
	reply = strings.TrimRight(reply, "\r\n")

	if len(reply) < headerLen || reply[0] != '#' {
		return nil, newError(ErrMalformedHeader, reply, nil)
	}
	lengthField := reply[preambleLen:headerLen]
	byteLength, err := strconv.Atoi(lengthField)
	if err != nil || byteLength < 0 || strings.ContainsAny(lengthField, "+- ") {
		return nil, newError(ErrMalformedHeader, reply, err)
	}

	payload := reply[headerLen:]
	short := byteLength - len(payload)
	if short <= 0 {
		payload = payload[:byteLength]
	}

	tokens := strings.Split(payload, ",")
	if short > 0 && (!strings.HasSuffix(payload, ",") || short > widestField(tokens)) {
		return nil, newError(ErrTruncatedPayload, reply,
			fmt.Errorf("declared %d bytes, received %d", byteLength, len(payload)))
	}

	// the trailing comma leaves an empty last token
	if last := len(tokens) - 1; strings.TrimSpace(tokens[last]) == "" {
		tokens = tokens[:last]
	}

	values := make([]float64, 0, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, newError(ErrBadValue, reply, fmt.Errorf("value %d: %w", i, err))
		}
		values = append(values, v)
	}

	return values, nil
}

// widestField returns the width of the longest value including its separator.
func widestField(tokens []string) int {
	widest := 0
	for _, tok := range tokens {
		widest = max(widest, len(tok)+1)
	}
	return widest
}

// EncodeWaveform formats values as a :WAV:DATA? ASCII block. It is the inverse of
// DecodeWaveform and is used by the simulated instrument.
func EncodeWaveform(values []float64) string {
	var payload strings.Builder
	for _, v := range values {
		payload.WriteString(strconv.FormatFloat(v, 'E', 6, 64))
		payload.WriteByte(',')
	}
	return fmt.Sprintf("#9%09d%s", payload.Len(), payload.String())
}
