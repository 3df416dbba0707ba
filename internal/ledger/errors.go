package ledger

import (
	"errors"
	"fmt"

	"github.com/roach88/reqsync/internal/request"
)

// ErrorCode categorizes rejected requests.
type ErrorCode string

const (
	// CodeUnauthorized: the requestor does not hold the slot (origin) or does
	// not claim the installed value (destination).
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeDuplicateRequest: (direction, id) was already applied or committed here.
	CodeDuplicateRequest ErrorCode = "DUPLICATE_REQUEST"

	// CodeUnverifiedOrigin: no proof that the origin layer accepted the request.
	CodeUnverifiedOrigin ErrorCode = "UNVERIFIED_ORIGIN"

	// CodeMalformedSlotValue: a word could not be decoded for the slot's type.
	CodeMalformedSlotValue ErrorCode = "MALFORMED_SLOT_VALUE"

	// CodeWrongRole: the entry point does not accept this direction on this layer.
	CodeWrongRole ErrorCode = "WRONG_ROLE"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrUnauthorized       = &RequestError{Code: CodeUnauthorized}
	ErrDuplicateRequest   = &RequestError{Code: CodeDuplicateRequest}
	ErrUnverifiedOrigin   = &RequestError{Code: CodeUnverifiedOrigin}
	ErrMalformedSlotValue = &RequestError{Code: CodeMalformedSlotValue}
	ErrWrongRole          = &RequestError{Code: CodeWrongRole}
)

// RequestError is a rejected submission. It never leaves partial state behind.
type RequestError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Role is the layer that rejected the request.
	Role request.Role

	// Phase is the entry point that was called.
	Phase request.Phase

	// Direction and RequestID identify the request.
	Direction request.Direction
	RequestID uint64

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Role != 0 {
		msg = fmt.Sprintf("%s (layer=%s, phase=%s, request=%s#%d)", msg, e.Role, e.Phase, e.Direction, e.RequestID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error { return e.Err }

// Is matches any RequestError with the same code.
func (e *RequestError) Is(target error) bool {
	t, ok := target.(*RequestError)
	return ok && t.Code == e.Code
}

// Retryable reports whether the same call may succeed later.
// Only a missing or failed origin proof can be fixed by waiting.
func (e *RequestError) Retryable() bool {
	return e.Code == CodeUnverifiedOrigin
}

// CodeOf returns the code of a RequestError anywhere in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}

// IsRetryable reports whether err is a retryable RequestError.
func IsRetryable(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Retryable()
}

func newRequestError(code ErrorCode, role request.Role, phase request.Phase, req request.Request, cause error, format string, args ...any) *RequestError {
	return &RequestError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Role:      role,
		Phase:     phase,
		Direction: req.Direction,
		RequestID: req.ID,
		Err:       cause,
	}
}
