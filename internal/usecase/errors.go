package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput              ErrorCode = "INVALID_INPUT"
	ErrorOrderNotFound             ErrorCode = "ORDER_NOT_FOUND"
	ErrorConversationTerminal      ErrorCode = "CONVERSATION_TERMINAL"
	ErrorBackendQuota              ErrorCode = "BACKEND_QUOTA_EXCEEDED"
	ErrorBackendUnavailable        ErrorCode = "BACKEND_UNAVAILABLE"
	ErrorUnrecoverableParse        ErrorCode = "UNRECOVERABLE_PARSE"
	ErrorModificationNotApplicable ErrorCode = "MODIFICATION_NOT_APPLICABLE"
	ErrorUnmatchedShape            ErrorCode = "UNMATCHED_MODIFICATION_SHAPE"
	ErrorStore                     ErrorCode = "STORE_FAILURE"
)

// Error is the typed failure used across the engine. Only INVALID_INPUT for a
// missing order id is returned to callers; every other code is logged and
// answered with a reply.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
