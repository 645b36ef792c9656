package codec

import "fmt"

// SchemaMismatch is raised when a log record lacks a field its EventKind's
// extraction schema requires. The filter worker that sees this error logs
// and skips the event; it never tears down the filter.
type SchemaMismatch struct {
	Kind  EventKind
	Field string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("codec: event %q missing required field %q", e.Kind, e.Field)
}

func missingField(kind EventKind, field string) error {
	return &SchemaMismatch{Kind: kind, Field: field}
}
