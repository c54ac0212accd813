package resource

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSegmentValue is returned when no supplied value matches a
	// segment token.
	ErrMissingSegmentValue = errors.New("segment value missing")

	// ErrNullSegmentValue is returned when the value matching a segment
	// token carries nothing.
	ErrNullSegmentValue = errors.New("segment value is null")

	// ErrNoSegmentValues is returned when a template with segment tokens is
	// merged without any values.
	ErrNoSegmentValues = errors.New("no values supplied for segments")

	// ErrParameterHasNoValue is returned when formatting a parameter that
	// carries nothing.
	ErrParameterHasNoValue = errors.New("parameter has no value")
)

// SegmentError identifies the segment that could not be merged.
type SegmentError struct {
	// Segment is the token name without the leading colon.
	Segment string

	// Template is the resource path being merged.
	Template string

	// Err is one of the Err*Segment* sentinels.
	Err error
}

// Error implements the error interface.
func (e *SegmentError) Error() string {
	return fmt.Sprintf("resource: merge %q: segment :%s: %v", e.Template, e.Segment, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *SegmentError) Unwrap() error {
	return e.Err
}
