package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates the remote side is throttling the caller.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates unexpected errors, bugs or panics.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryResource:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific error types within categories.
type ErrorCode string

const (
	// Transient errors
	ErrCodeTimeout ErrorCode = "TIMEOUT" // Deadline exceeded
	ErrCodeNetwork ErrorCode = "NETWORK" // Transport failure before a response
	ErrCodeHTTP    ErrorCode = "HTTP"    // Non-2xx status other than 429

	// Permanent errors
	ErrCodeAPI                ErrorCode = "API"                  // ok:false response
	ErrCodeHTTPProtocol       ErrorCode = "HTTP_PROTOCOL"        // Undecodable response
	ErrCodeSocketModeProtocol ErrorCode = "SOCKET_MODE_PROTOCOL" // Unexpected Socket Mode frame
	ErrCodeEndOfStream        ErrorCode = "END_OF_STREAM"        // Client already destroyed
	ErrCodeSignature          ErrorCode = "SIGNATURE"            // Request signature rejected
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"        // Bad arguments or configuration
	ErrCodeCanceled           ErrorCode = "CANCELED"             // Context canceled

	// Resource errors
	ErrCodeRateLimit ErrorCode = "RATE_LIMITED"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
	ErrCodePanic    ErrorCode = "PANIC" // Recovered from a callback panic
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeTimeout, ErrCodeNetwork, ErrCodeHTTP:
		return CategoryTransient
	case ErrCodeAPI, ErrCodeHTTPProtocol, ErrCodeSocketModeProtocol, ErrCodeEndOfStream,
		ErrCodeSignature, ErrCodeInvalidInput, ErrCodeCanceled:
		return CategoryPermanent
	case ErrCodeRateLimit:
		return CategoryResource
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeTimeout:            "operation timed out",
	ErrCodeNetwork:            "network error",
	ErrCodeHTTP:               "unexpected http status",
	ErrCodeAPI:                "api call failed",
	ErrCodeHTTPProtocol:       "malformed http response",
	ErrCodeSocketModeProtocol: "socket mode protocol error",
	ErrCodeEndOfStream:        "end of stream",
	ErrCodeSignature:          "signature verification failed",
	ErrCodeInvalidInput:       "invalid input",
	ErrCodeCanceled:           "operation canceled",
	ErrCodeRateLimit:          "rate limited",
	ErrCodeInternal:           "internal error",
	ErrCodePanic:              "recovered from panic",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
