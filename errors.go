package mime

import (
	"errors"
	"fmt"
)

// ErrHeaderNotFound is returned when a header lookup comes up empty.
// It signals an absent header, not a malformed one.
var ErrHeaderNotFound = errors.New("header not found")

// InvalidContentTypeError is returned when a media type string does not
// conform to the type "/" subtype *(";" parameter) grammar.
type InvalidContentTypeError struct {
	// Input is the complete string that was being parsed
	Input string
	// Pos is the offset in Input where parsing stopped
	Pos int
	// Reason describes what the parser was expecting
	Reason string
}

func (e *InvalidContentTypeError) Error() string {
	return fmt.Sprintf("invalid content type %q: %s (pos %d)", e.Input, e.Reason, e.Pos)
}

// ParserError is returned when a body cannot be converted to the requested
// representation, or when a multipart body is structurally broken.
type ParserError struct {
	// Op names the conversion or parse step that failed
	Op  string
	Err error
}

func (e *ParserError) Error() string {
	return "mime: " + e.Op + ": " + e.Err.Error()
}

func (e *ParserError) Unwrap() error {
	return e.Err
}

func parseError(op string, err error) *ParserError {
	return &ParserError{Op: op, Err: err}
}

func parseErrorf(op, format string, args ...interface{}) *ParserError {
	return &ParserError{Op: op, Err: fmt.Errorf(format, args...)}
}
