// Package errors defines the structured error taxonomy shared by the Web API
// connector, the Socket Mode listener and the Events API handler.
//
// # Error Categories
//
//   - Transient: the call may succeed if repeated (network failure, timeout, 5xx)
//   - Permanent: repeating will not help (API error, malformed frame, bad input)
//   - Resource: the remote side is throttling us (rate limited)
//   - Internal: unexpected failures inside the library or a callback
//
// # Client Errors
//
// The codes most callers branch on:
//
//   - RATE_LIMITED: HTTP 429 or "ratelimited"; carries an optional Retry-After
//   - API: the platform answered {"ok": false, "error": "..."}
//   - HTTP: non-2xx status other than 429
//   - HTTP_PROTOCOL: the response body could not be decoded
//   - SOCKET_MODE_PROTOCOL: unexpected Socket Mode frame content
//   - END_OF_STREAM: a destroyed Socket Mode client was asked to connect
//
// # Usage
//
//	err := errors.RateLimited("chat.postMessage", errors.WithRetryAfter(30*time.Second))
//
//	if d, ok := errors.RetryAfter(err); ok {
//	    time.Sleep(d)
//	}
//
//	if errors.Is(err, errors.ErrCodeAPI) {
//	    log.Print(errors.APICode(err))
//	}
package errors
