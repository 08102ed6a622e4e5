package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Wrap wraps an error with additional context while preserving the error chain.
// If err is nil, Wrap returns nil. An existing *Error keeps its code and
// response details; context and network errors get their own codes; anything
// else becomes an internal error.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var clientErr *Error
	if errors.As(err, &clientErr) {
		wrapped := &Error{
			code:       clientErr.code,
			category:   clientErr.category,
			message:    message,
			cause:      err,
			metadata:   clientErr.Metadata(),
			retryable:  clientErr.retryable,
			timestamp:  clientErr.timestamp,
			retryAfter: clientErr.retryAfter,
			httpStatus: clientErr.httpStatus,
			apiCode:    clientErr.apiCode,
			warnings:   clientErr.warnings,
		}
		for _, opt := range opts {
			opt(wrapped)
		}
		return wrapped
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
	}
	if errors.Is(err, context.Canceled) {
		return New(ErrCodeCanceled, message, append(opts, WithCause(err))...)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return New(ErrCodeTimeout, message, append(opts, WithCause(err))...)
		}
		return New(ErrCodeNetwork, message, append(opts, WithCause(err))...)
	}

	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps an error with a specific error code.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// AsClientError extracts a ClientError from an error chain, nil if there is none.
func AsClientError(err error) ClientError {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr
	}
	return nil
}

// Is checks if any error in the chain has the given error code.
func Is(err error, code ErrorCode) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.code == code
	}
	return false
}

// IsRetryable checks if the error is retryable.
func IsRetryable(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable()
	}
	return false
}

// IsRateLimited reports whether the error is a rate limit error.
func IsRateLimited(err error) bool {
	return Is(err, ErrCodeRateLimit)
}

// Code extracts the error code from an error, empty if there is none.
func Code(err error) ErrorCode {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.code
	}
	return ""
}

// RetryAfter returns the Retry-After hint carried by err.
func RetryAfter(err error) (time.Duration, bool) {
	var clientErr *Error
	if errors.As(err, &clientErr) && clientErr.retryAfter > 0 {
		return clientErr.retryAfter, true
	}
	return 0, false
}

// HTTPStatus returns the HTTP status carried by err, zero if none.
func HTTPStatus(err error) int {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.httpStatus
	}
	return 0
}

// APICode returns the platform error string carried by err.
func APICode(err error) string {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.apiCode
	}
	return ""
}

// RecoverPanic converts a recovered panic value into an Error.
func RecoverPanic(recovered interface{}) *Error {
	if recovered == nil {
		return nil
	}
	var message string
	switch v := recovered.(type) {
	case error:
		message = v.Error()
	case string:
		message = v
	default:
		message = fmt.Sprintf("%v", v)
	}
	return New(ErrCodePanic, message, WithMetadata("panic_value", fmt.Sprintf("%T", recovered)))
}
