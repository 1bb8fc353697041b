package llm

import "fmt"

// ClientError is the base error type for all model-client errors.
type ClientError struct {
	Message string
	Cause   error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// RateLimitError indicates the provider rejected the call for exceeding a
// rate limit. Recovered locally via bounded retry with backoff.
type RateLimitError struct {
	ClientError
	// RetryAfter is the provider-suggested wait in seconds, when known.
	RetryAfter *float64
}

// UpstreamError indicates the provider is unavailable or failing
// (5xx-class). Retryable, but fatal to the run once retries exhaust.
type UpstreamError struct {
	ClientError
	StatusCode int
}

// TimeoutError indicates a single call exceeded its deadline. Treated as
// that step's failure, not an abort of the whole run.
type TimeoutError struct {
	ClientError
}

// InvalidRequestError indicates a malformed request. Never retried.
type InvalidRequestError struct {
	ClientError
}

// AuthenticationError indicates a bad or missing credential. Never retried.
type AuthenticationError struct {
	ClientError
}

// ErrorFromStatusCode maps an HTTP status code to the matching error type.
func ErrorFromStatusCode(statusCode int, message string, retryAfter *float64) error {
	base := ClientError{Message: message}
	switch statusCode {
	case 400, 404, 413, 422:
		return &InvalidRequestError{ClientError: base}
	case 401, 403:
		return &AuthenticationError{ClientError: base}
	case 408:
		return &TimeoutError{ClientError: base}
	case 429:
		return &RateLimitError{ClientError: base, RetryAfter: retryAfter}
	default:
		return &UpstreamError{ClientError: base, StatusCode: statusCode}
	}
}

// IsRetryable reports whether the error is safe to retry with the same
// request. Unknown errors default to retryable; requests are side-effect
// free by contract.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case *InvalidRequestError, *AuthenticationError:
		return false
	case *RateLimitError, *UpstreamError, *TimeoutError:
		return true
	default:
		return true
	}
}

// IsTimeout reports whether the error is a per-call timeout.
func IsTimeout(err error) bool {
	_, ok := err.(*TimeoutError)
	return ok
}
