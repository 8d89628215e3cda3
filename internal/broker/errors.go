package broker

import (
	"errors"
	"fmt"
)

// Error classifies a failed broker call. A transport failure or a malformed
// response is retryable; an explicit rejection reported by the broker is not,
// and a retry would only fail again.
type Error struct {
	Retryable bool
	Code      string
	Message   string
}

func (e *Error) Error() string {
	kind := "terminal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("broker error (%s, code=%s): %s", kind, e.Code, e.Message)
}

func retryableErr(format string, args ...interface{}) *Error {
	return &Error{Retryable: true, Message: fmt.Sprintf(format, args...)}
}

func terminalErr(code, message string) *Error {
	return &Error{Retryable: false, Code: code, Message: message}
}

// IsRetryable reports whether the error is a broker error that may succeed on
// a later attempt. Reservations behind such errors must stay in place.
func IsRetryable(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Retryable
}

// IsTerminal reports an explicit broker rejection.
func IsTerminal(err error) bool {
	var be *Error
	return errors.As(err, &be) && !be.Retryable
}
