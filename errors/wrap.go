package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap adds context to err while keeping its classification.
// Wrap(nil, ...) returns nil. An *Error anywhere in the chain keeps its code,
// category and retryability; context errors become TIMEOUT or CANCELED;
// everything else is INTERNAL.
func Wrap(err error, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		wrapped := &Error{
			code:      classified.code,
			category:  classified.category,
			message:   message,
			cause:     err,
			metadata:  classified.Metadata(),
			retryable: classified.retryable,
			timestamp: classified.timestamp,
			jobID:     classified.jobID,
			provider:  classified.provider,
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
	return New(ErrCodeInternal, message, append(opts, WithCause(err))...)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode wraps err under an explicit code, discarding any prior
// classification.
func WrapWithCode(err error, code ErrorCode, message string, opts ...Option) *Error {
	if err == nil {
		return nil
	}
	return New(code, message, append(opts, WithCause(err))...)
}

// As extracts the first *Error from the chain, or nil.
func As(err error) *Error {
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return nil
}

// Is reports whether the first *Error in the chain has the given code.
func Is(err error, code ErrorCode) bool {
	if e := As(err); e != nil {
		return e.code == code
	}
	return false
}

// IsCategory reports whether the first *Error in the chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	if e := As(err); e != nil {
		return e.category == category
	}
	return false
}

// IsRetryable reports whether err is a retryable *Error.
// Unclassified errors are never retryable.
func IsRetryable(err error) bool {
	if e := As(err); e != nil {
		return e.Retryable()
	}
	return false
}

// IsResource reports whether err is a rate or quota limit.
func IsResource(err error) bool { return IsCategory(err, CategoryResource) }

// IsTransient reports whether err is a transient service failure.
func IsTransient(err error) bool { return IsCategory(err, CategoryTransient) }

// IsPermanent reports whether err is a permanent request failure.
func IsPermanent(err error) bool { return IsCategory(err, CategoryPermanent) }

// Code extracts the error code, or "" for unclassified errors.
func Code(err error) ErrorCode {
	if e := As(err); e != nil {
		return e.code
	}
	return ""
}

// Category extracts the error category, or "" for unclassified errors.
func Category(err error) ErrorCategory {
	if e := As(err); e != nil {
		return e.category
	}
	return ""
}

// Join combines multiple errors; see errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
