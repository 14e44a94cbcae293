package render

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vinayprograms/renderkit/errors"
)

// Classify converts a provider failure into an *errors.Error.
// Errors that are already classified pass through unchanged. Unknown errors
// become INTERNAL, which the scheduler treats as fatal.
func Classify(err error, provider string) error {
	if err == nil {
		return nil
	}
	if e := errors.As(err); e != nil {
		return e
	}

	opts := []errors.Option{errors.WithCause(err), errors.WithProvider(provider)}

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.ErrCodeTimeout, "render call timed out", opts...)
	case stderrors.Is(err, context.Canceled):
		return errors.New(errors.ErrCodeCanceled, "render call canceled", opts...)
	}

	var oaiErr *openai.Error
	if stderrors.As(err, &oaiErr) {
		msg := oaiErr.Message
		if msg == "" {
			msg = http.StatusText(oaiErr.StatusCode)
		}
		return fromHTTPStatus(oaiErr.StatusCode, msg, opts)
	}

	var gErr *googleapi.Error
	if stderrors.As(err, &gErr) {
		msg := gErr.Message
		if msg == "" {
			msg = http.StatusText(gErr.Code)
		}
		return fromHTTPStatus(gErr.Code, msg, opts)
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return fromGRPCCode(st.Code(), st.Message(), opts)
	}

	return errors.New(errors.ErrCodeInternal, err.Error(), opts...)
}

func fromHTTPStatus(code int, msg string, opts []errors.Option) *errors.Error {
	opts = append(opts, errors.WithMetadata("http_status", strconv.Itoa(code)))

	switch code {
	case http.StatusTooManyRequests:
		return errors.New(errors.ErrCodeRateLimit, msg, opts...)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return errors.New(errors.ErrCodeUnavailable, msg, opts...)
	case http.StatusRequestTimeout:
		return errors.New(errors.ErrCodeTimeout, msg, opts...)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return errors.New(errors.ErrCodeInvalidInput, msg, opts...)
	case http.StatusUnauthorized:
		return errors.New(errors.ErrCodeUnauthorized, msg, opts...)
	case http.StatusForbidden, http.StatusPaymentRequired:
		return errors.New(errors.ErrCodeForbidden, msg, opts...)
	default:
		return errors.New(errors.ErrCodeInternal, msg, opts...)
	}
}

func fromGRPCCode(code codes.Code, msg string, opts []errors.Option) *errors.Error {
	opts = append(opts, errors.WithMetadata("grpc_code", code.String()))

	switch code {
	case codes.ResourceExhausted:
		return errors.New(errors.ErrCodeRateLimit, msg, opts...)
	case codes.Unavailable:
		return errors.New(errors.ErrCodeUnavailable, msg, opts...)
	case codes.DeadlineExceeded:
		return errors.New(errors.ErrCodeTimeout, msg, opts...)
	case codes.Aborted:
		return errors.New(errors.ErrCodeRetryLater, msg, opts...)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.NotFound:
		return errors.New(errors.ErrCodeInvalidInput, msg, opts...)
	case codes.Unauthenticated:
		return errors.New(errors.ErrCodeUnauthorized, msg, opts...)
	case codes.PermissionDenied:
		return errors.New(errors.ErrCodeForbidden, msg, opts...)
	case codes.Canceled:
		return errors.New(errors.ErrCodeCanceled, msg, opts...)
	default:
		return errors.New(errors.ErrCodeInternal, msg, opts...)
	}
}
