package view

import (
	"errors"
	"fmt"

	"github.com/roach88/livedoc/internal/record"
	"github.com/roach88/livedoc/internal/store"
)

// ErrorCode categorizes view errors.
type ErrorCode string

const (
	// ErrCodeNotFound means a point lookup found nothing. Absorbed during
	// reconciliation.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeOutOfRange means RemoveAt got an invalid visible position.
	ErrCodeOutOfRange ErrorCode = "OUT_OF_RANGE"

	// ErrCodeMalformedRecord means a stored archive failed to decode.
	// Absorbed during reconciliation, like NOT_FOUND.
	ErrCodeMalformedRecord ErrorCode = "MALFORMED_RECORD"
)

// Error is a coded view error.
type Error struct {
	Code    ErrorCode
	Message string

	// Position and Count are set for OUT_OF_RANGE.
	Position int
	Count    int

	// ID is set for NOT_FOUND and MALFORMED_RECORD.
	ID string

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying store or decode error, if any.
func (e *Error) Unwrap() error { return e.Err }

// NewOutOfRangeError reports an invalid position against count visible rows.
func NewOutOfRangeError(position, count int) *Error {
	return &Error{
		Code:     ErrCodeOutOfRange,
		Message:  fmt.Sprintf("position %d outside [0, %d)", position, count),
		Position: position,
		Count:    count,
	}
}

// classifyFetchError turns a ReadByID failure into a coded error. Errors that
// are neither NotFound nor Malformed are returned unchanged.
func classifyFetchError(id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Code: ErrCodeNotFound, Message: "record not in store", ID: id, Err: err}
	case errors.Is(err, record.ErrMalformed):
		return &Error{Code: ErrCodeMalformedRecord, Message: "record failed to decode", ID: id, Err: err}
	default:
		return err
	}
}

// IsOutOfRange reports whether err is an OUT_OF_RANGE view error.
func IsOutOfRange(err error) bool {
	return hasCode(err, ErrCodeOutOfRange)
}

// IsNotFound reports whether err is a NOT_FOUND view error or wraps
// store.ErrNotFound.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound) || store.IsNotFound(err)
}

// IsMalformed reports whether err is a MALFORMED_RECORD view error or wraps
// record.ErrMalformed.
func IsMalformed(err error) bool {
	return hasCode(err, ErrCodeMalformedRecord) || errors.Is(err, record.ErrMalformed)
}

// CodeOf returns the code of a view error, or "" for any other error.
func CodeOf(err error) ErrorCode {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

func hasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
