package format

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is reported when the buffer ends before a structure does.
	ErrTruncated = errors.New("truncated buffer")
	// ErrBadMagic is reported when the header magic does not match.
	ErrBadMagic = errors.New("bad magic")
	// ErrUnsupportedVersion is reported when the layout version is not accepted.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrChecksumMismatch is reported when the payload checksum does not match the header.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrOutOfRange is reported when an offset or index points outside its target.
	ErrOutOfRange = errors.New("offset out of range")
	// ErrMissingField is reported when a required field is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrMalformed is reported for structurally invalid tables and vtables.
	ErrMalformed = errors.New("malformed structure")
	// ErrTooManyTables is reported when verification exceeds its table budget.
	ErrTooManyTables = errors.New("too many tables")
)

// FormatError describes why a buffer failed verification.
//
// Kind is one of the sentinel errors above and is matched by errors.Is.
type FormatError struct {
	Kind   error
	Offset int
	Detail string
}

func (e *FormatError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("format: %v at offset %d", e.Kind, e.Offset)
	}
	return fmt.Sprintf("format: %v at offset %d: %s", e.Kind, e.Offset, e.Detail)
}

func (e *FormatError) Unwrap() error { return e.Kind }

func formatErr(kind error, off int, detail string, args ...any) *FormatError {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &FormatError{Kind: kind, Offset: off, Detail: detail}
}
