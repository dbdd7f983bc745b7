package proto

import "fmt"

// ErrorKind classifies decode failures. Every kind is recoverable: the
// offending line is dropped and decoding resumes on the next line.
type ErrorKind int

const (
	MalformedField ErrorKind = iota
	MalformedTimestamp
	MalformedAddress
	UnexpectedRecordType
	FieldCountMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case MalformedField:
		return "malformed_field"
	case MalformedTimestamp:
		return "malformed_timestamp"
	case MalformedAddress:
		return "malformed_address"
	case UnexpectedRecordType:
		return "unexpected_record_type"
	case FieldCountMismatch:
		return "field_count_mismatch"
	}
	return "unknown"
}

// DecodeError reports a rejected protocol line. Field names the wire field
// that failed, when one can be identified.
type DecodeError struct {
	Kind  ErrorKind
	Field string
	Cause string
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode: %s: %s", e.Kind, e.Cause)
	}
	return fmt.Sprintf("decode: %s: field %q: %s", e.Kind, e.Field, e.Cause)
}

func decodeErr(kind ErrorKind, field, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: kind, Field: field, Cause: fmt.Sprintf(format, args...)}
}
