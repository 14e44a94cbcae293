package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

const (
	// CategoryTransient indicates the service is temporarily unable to serve
	// the request (overload, timeout). Retry without backing off concurrency.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates the request will never succeed as sent.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryResource indicates the caller exceeded a rate or quota limit.
	CategoryResource ErrorCategory = "resource"

	// CategoryInternal indicates a local failure or a bug.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	return c == CategoryTransient || c == CategoryResource
}

// ErrorCode identifies a specific failure.
type ErrorCode string

const (
	// Resource
	ErrCodeRateLimit     ErrorCode = "RATE_LIMITED"   // HTTP 429 or equivalent
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED" // per-day or per-project quota

	// Transient
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE" // HTTP 503/502 or equivalent
	ErrCodeTimeout     ErrorCode = "TIMEOUT"     // call deadline exceeded
	ErrCodeRetryLater  ErrorCode = "RETRY_LATER" // server asked for a retry

	// Permanent
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // malformed payload
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"  // missing or bad credentials
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"     // credentials lack access
	ErrCodeBadResponse  ErrorCode = "BAD_RESPONSE"  // response had no usable artifact
	ErrCodeCanceled     ErrorCode = "CANCELED"      // caller gave up

	// Internal
	ErrCodeIO       ErrorCode = "IO"       // artifact read/write failure
	ErrCodeInternal ErrorCode = "INTERNAL" // anything unclassified
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeRateLimit, ErrCodeQuotaExceeded:
		return CategoryResource
	case ErrCodeUnavailable, ErrCodeTimeout, ErrCodeRetryLater:
		return CategoryTransient
	case ErrCodeInvalidInput, ErrCodeUnauthorized, ErrCodeForbidden,
		ErrCodeBadResponse, ErrCodeCanceled:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

var codeDescriptions = map[ErrorCode]string{
	ErrCodeRateLimit:     "rate limit exceeded",
	ErrCodeQuotaExceeded: "quota exceeded",
	ErrCodeUnavailable:   "service unavailable",
	ErrCodeTimeout:       "operation timed out",
	ErrCodeRetryLater:    "server requested retry later",
	ErrCodeInvalidInput:  "invalid input",
	ErrCodeUnauthorized:  "authentication failed",
	ErrCodeForbidden:     "access denied",
	ErrCodeBadResponse:   "unexpected response",
	ErrCodeCanceled:      "operation canceled",
	ErrCodeIO:            "i/o failure",
	ErrCodeInternal:      "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
