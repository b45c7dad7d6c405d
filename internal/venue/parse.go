package venue

import (
	"errors"
	"fmt"
)

type ParseStatus int

const (
	ParseOK ParseStatus = iota
	ParseMissingField
	ParseMalformed
)

func (s ParseStatus) String() string {
	switch s {
	case ParseOK:
		return "ok"
	case ParseMissingField:
		return "missing_field"
	case ParseMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ParseError reports a venue payload that could not be turned into a
// snapshot. It is distinct from transport errors so callers can keep the
// previous snapshot instead of retrying.
type ParseError struct {
	Venue  ID
	Status ParseStatus
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s snapshot %s: %s", e.Venue, e.Status, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func MissingField(venue ID, field string) error {
	return &ParseError{Venue: venue, Status: ParseMissingField, Field: field}
}

func Malformed(venue ID, field string, err error) error {
	return &ParseError{Venue: venue, Status: ParseMalformed, Field: field, Err: err}
}

// ParseStatusOf classifies err. Non-parse errors report ParseOK with ok=false.
func ParseStatusOf(err error) (ParseStatus, bool) {
	var perr *ParseError
	if errors.As(err, &perr) {
		return perr.Status, true
	}
	return ParseOK, false
}
