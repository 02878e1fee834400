package derrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies domain errors so transports can map them without string
// matching. Services create coded errors; handlers translate them.
type Code string

const (
	CodeInvalidInput        Code = "invalid_input"
	CodeBadRequest          Code = "bad_request"
	CodeUnauthorized        Code = "unauthorized"
	CodeForbidden           Code = "forbidden"
	CodeNotFound            Code = "not_found"
	CodeConflict            Code = "conflict"
	CodeInvalidSponsor      Code = "invalid_sponsor"
	CodeDuplicateEdge       Code = "duplicate_edge"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeSlotShapeViolation  Code = "slot_shape_violation"
	CodeInvalidState        Code = "invalid_state"
	CodeInternal            Code = "internal"
)

// Error carries a code plus a human-readable message. It supports wrapping so
// infrastructure causes stay inspectable with errors.Is/As.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded domain error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// Is is a convenience alias used by handlers.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status used by the JSON error
// envelope. Unknown codes deliberately fall back to 500.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeInvalidSponsor:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicateEdge:
		return http.StatusConflict
	case CodeInsufficientBalance, CodeInvalidState:
		return http.StatusUnprocessableEntity
	case CodeSlotShapeViolation, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
