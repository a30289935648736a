package errors

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/hookline/hookline/internal/rest"
	"github.com/hookline/hookline/internal/server/middleware"
	"github.com/hookline/hookline/internal/webhook"
)

// Envelope codes used by the serve surface.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeNotFound, message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeMethodNotAllowed, message)
}

// NewRateLimitedError reports an inbound request refused by the relay limiter.
func NewRateLimitedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeRateLimited, message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope(CodeServiceUnavailable, message)
}

// Wrap builds an envelope for err, carrying the request correlation ID.
func Wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	id := requestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(id).WithTraceID(id)
	if err == nil {
		return envelope
	}
	if withCause, ctxErr := envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); ctxErr == nil {
		return withCause
	}
	return envelope
}

func WrapInvalidInput(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidInput, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

// MapDispatchError converts an error from the dispatcher or webhook client
// into an envelope. Upstream 4xx responses keep their meaning; timeouts map
// to TIMEOUT and everything else is an upstream failure.
func MapDispatchError(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	var restErr *rest.RESTError
	if stderrors.As(err, &restErr) {
		envelope := Wrap(ctx, codeForStatus(restErr.StatusCode), err, "upstream rejected the request")
		return envelope.WithDetails(map[string]interface{}{
			"upstream_status":  restErr.StatusCode,
			"upstream_code":    restErr.Code,
			"upstream_message": restErr.Message,
			"route":            restErr.Route,
		})
	}

	var httpErr *rest.HTTPError
	if stderrors.As(err, &httpErr) {
		envelope := Wrap(ctx, codeForStatus(httpErr.StatusCode), err, "upstream returned an error status")
		return envelope.WithDetails(map[string]interface{}{
			"upstream_status": httpErr.StatusCode,
			"route":           httpErr.Route,
		})
	}

	var transportErr *rest.TransportError
	if stderrors.As(err, &transportErr) && transportErr.Timeout {
		return Wrap(ctx, CodeTimeout, err, "upstream request timed out")
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return Wrap(ctx, CodeTimeout, err, "request abandoned before completion")
	}

	var encodingErr *rest.EncodingError
	if stderrors.As(err, &encodingErr) {
		return Wrap(ctx, CodeInvalidInput, err, "request body could not be encoded")
	}

	for _, invalid := range []error{
		webhook.ErrNoContent,
		webhook.ErrThreadConflict,
		webhook.ErrComponentsUnsupported,
		webhook.ErrNoValidOptions,
		webhook.ErrMissingCredentials,
		webhook.ErrInvalidURL,
	} {
		if stderrors.Is(err, invalid) {
			return Wrap(ctx, CodeInvalidInput, err, invalid.Error())
		}
	}

	return Wrap(ctx, CodeExternalService, err, "upstream request failed")
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status >= 400 && status < 500:
		return CodeInvalidInput
	default:
		return CodeExternalService
	}
}

// statusByCode maps envelope codes to the HTTP status written to callers.
var statusByCode = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	"VALIDATION_FAILED":    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeTimeout:            http.StatusGatewayTimeout,
	CodeExternalService:    http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// HTTPStatusFromCode returns the status for code, 500 when unknown.
func HTTPStatusFromCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// HTTPStatusFromEnvelope is HTTPStatusFromCode for an envelope; nil is a 500.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// EnsureEnvelope returns err as an envelope, wrapping foreign errors as
// INTERNAL_ERROR.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	severity := errors.SeverityHigh
	envelope = errors.NewErrorEnvelope(CodeInternal, "unexpected error")
	if err == nil {
		severity = errors.SeverityCritical
		envelope = errors.NewErrorEnvelope(CodeInternal, "unexpected nil error")
	} else if withCause, ctxErr := envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); ctxErr == nil {
		envelope = withCause
	}
	if withSeverity, sevErr := envelope.WithSeverity(severity); sevErr == nil {
		envelope = withSeverity
	}
	return envelope
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}
