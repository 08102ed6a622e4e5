package errors

import (
	"fmt"
	"strings"
	"time"
)

// ClientError is implemented by every structured error returned by this module.
type ClientError interface {
	error

	// Code returns the specific error code identifying the failure type.
	Code() ErrorCode

	// Category returns the error category for retry/handling decisions.
	Category() ErrorCategory

	// Retryable returns true if the operation may succeed on retry.
	Retryable() bool

	// Unwrap returns the underlying error, if any.
	Unwrap() error
}

// Error is the concrete implementation of ClientError.
type Error struct {
	code       ErrorCode
	category   ErrorCategory
	message    string
	cause      error
	metadata   map[string]string
	retryable  *bool // nil means use default based on category
	timestamp  time.Time
	retryAfter time.Duration // zero when the server sent no hint
	httpStatus int
	apiCode    string
	warnings   []string
}

var _ ClientError = (*Error)(nil)

func (e *Error) Error() string {
	msg := e.message
	if e.apiCode != "" && e.cause == nil {
		msg = fmt.Sprintf("%s: %s", msg, e.apiCode)
	}
	if e.httpStatus != 0 && e.code == ErrCodeHTTP && e.cause == nil {
		msg = fmt.Sprintf("%s (status %d)", msg, e.httpStatus)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

// Code returns the error code.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Category returns the error category.
func (e *Error) Category() ErrorCategory {
	return e.category
}

// Retryable returns whether this error is retryable.
func (e *Error) Retryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	return e.category.IsRetryable()
}

// Metadata returns a copy of the error metadata.
func (e *Error) Metadata() map[string]string {
	result := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		result[k] = v
	}
	return result
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Timestamp returns when the error occurred.
func (e *Error) Timestamp() time.Time {
	return e.timestamp
}

// RetryAfter returns the server-provided retry hint, zero if none.
func (e *Error) RetryAfter() time.Duration {
	return e.retryAfter
}

// HTTPStatus returns the HTTP status that produced the error, zero if none.
func (e *Error) HTTPStatus() int {
	return e.httpStatus
}

// APICode returns the platform error string of an ok:false response.
func (e *Error) APICode() string {
	return e.apiCode
}

// Warnings returns the warnings attached to the response, if any.
func (e *Error) Warnings() []string {
	return append([]string(nil), e.warnings...)
}

// Option is a functional option for configuring an Error.
type Option func(*Error)

// WithRetryable explicitly sets whether the error is retryable.
func WithRetryable(retryable bool) Option {
	return func(e *Error) {
		e.retryable = &retryable
	}
}

// WithMetadata adds a metadata key-value pair.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithCause sets the underlying cause.
func WithCause(cause error) Option {
	return func(e *Error) {
		e.cause = cause
	}
}

// WithRetryAfter records the server's Retry-After hint.
func WithRetryAfter(d time.Duration) Option {
	return func(e *Error) {
		e.retryAfter = d
	}
}

// WithHTTPStatus records the HTTP status code.
func WithHTTPStatus(status int) Option {
	return func(e *Error) {
		e.httpStatus = status
	}
}

// WithWarnings records response warnings.
func WithWarnings(warnings ...string) Option {
	return func(e *Error) {
		e.warnings = append(e.warnings, warnings...)
	}
}

// WithTimestamp sets a custom timestamp.
func WithTimestamp(t time.Time) Option {
	return func(e *Error) {
		e.timestamp = t
	}
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string, opts ...Option) *Error {
	e := &Error{
		code:      code,
		category:  code.DefaultCategory(),
		message:   message,
		timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Newf creates a new Error with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// RateLimited creates a rate limit error.
func RateLimited(message string, opts ...Option) *Error {
	return New(ErrCodeRateLimit, message, opts...)
}

// API creates an error for an ok:false response. Comma separated warning
// strings are split the way the platform reports them.
func API(method, apiCode, warning string, opts ...Option) *Error {
	var warnings []string
	for _, w := range strings.Split(warning, ",") {
		if w = strings.TrimSpace(w); w != "" {
			warnings = append(warnings, w)
		}
	}
	e := New(ErrCodeAPI, method, append([]Option{WithWarnings(warnings...)}, opts...)...)
	e.apiCode = apiCode
	return e
}

// HTTP creates an error for an unexpected HTTP status.
func HTTP(method string, status int, opts ...Option) *Error {
	opts = append([]Option{WithHTTPStatus(status)}, opts...)
	e := New(ErrCodeHTTP, method, opts...)
	if status >= 400 && status < 500 {
		e.category = CategoryPermanent
	}
	return e
}

// HTTPProtocol creates an error for a response that cannot be decoded.
func HTTPProtocol(message string, opts ...Option) *Error {
	return New(ErrCodeHTTPProtocol, message, opts...)
}

// SocketModeProtocol creates an error for unexpected Socket Mode content.
func SocketModeProtocol(message string, opts ...Option) *Error {
	return New(ErrCodeSocketModeProtocol, message, opts...)
}

// EndOfStream creates the error returned when a destroyed client is asked to proceed.
func EndOfStream(message string, opts ...Option) *Error {
	return New(ErrCodeEndOfStream, message, opts...)
}

// InvalidInput creates an invalid input error.
func InvalidInput(message string, opts ...Option) *Error {
	return New(ErrCodeInvalidInput, message, opts...)
}

// Internal creates an internal error.
func Internal(message string, opts ...Option) *Error {
	return New(ErrCodeInternal, message, opts...)
}
