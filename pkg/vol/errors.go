package vol

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is reported when a read runs past the end of the input
	ErrTruncated = errors.New("input truncated")

	// ErrFieldTooWide is reported when a string does not fit its fixed-width slot
	ErrFieldTooWide = errors.New("value too wide for field")

	// ErrInconsistent is reported when array sizes disagree with the header
	ErrInconsistent = errors.New("volume inconsistent with header")
)

// FormatError describes a malformed byte stream or a volume that cannot be
// encoded back into the fixed layout
type FormatError struct {
	// Op is "decode" or "encode"
	Op string

	// Field names the field being processed
	Field string

	// Offset is the absolute byte offset of the field, or -1 if not applicable
	Offset int64

	Err error
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("vol %s: %s at offset %d: %v", e.Op, e.Field, e.Offset, e.Err)
	}
	return fmt.Sprintf("vol %s: %s: %v", e.Op, e.Field, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
