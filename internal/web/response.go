package web

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lucasnoah/triagegate/internal/triage"
)

var (
	// ErrBadSignature is returned when a request signature does not verify.
	ErrBadSignature = errors.New("invalid signature")
	// ErrSaturated is returned when every triage slot is busy.
	ErrSaturated = errors.New("triage capacity exhausted")
	// ErrInvalidInput marks malformed request bodies.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDisabled is returned by endpoints whose backing component is not configured.
	ErrDisabled = errors.New("not configured")
	// ErrUnauthorized is returned when the API bearer token is missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError is a single field failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Envelope is the standard API response wrapper.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes a JSON response with the standard envelope.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, Envelope{Data: data})
}

// HTTPErrorHandler is the global error handler for echo.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, apiErr := mapError(err)
	if jsonErr := c.JSON(status, Envelope{Error: &apiErr}); jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

func mapError(err error) (int, APIError) {
	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, _ := echoErr.Message.(string)
		if msg == "" {
			msg = http.StatusText(echoErr.Code)
		}
		return echoErr.Code, APIError{
			Code:    http.StatusText(echoErr.Code),
			Message: msg,
		}
	}

	switch {
	case errors.Is(err, triage.ErrNotFound):
		return http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "The requested resource was not found",
		}
	case errors.Is(err, ErrBadSignature):
		return http.StatusUnauthorized, APIError{
			Code:    "invalid_signature",
			Message: "Request signature verification failed",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, APIError{
			Code:    "unauthorized",
			Message: "A valid API token is required",
		}
	case errors.Is(err, ErrSaturated):
		return http.StatusServiceUnavailable, APIError{
			Code:    "saturated",
			Message: "Too many issues are being triaged; retry later",
		}
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest, APIError{
			Code:    "invalid_input",
			Message: "The request body is invalid",
		}
	case errors.Is(err, ErrDisabled):
		return http.StatusNotFound, APIError{
			Code:    "not_configured",
			Message: "This endpoint is not configured",
		}
	default:
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			return http.StatusBadRequest, APIError{
				Code:    "validation_error",
				Message: "Validation failed",
				Details: []FieldError{
					{Field: validationErr.Field, Message: validationErr.Message},
				},
			}
		}

		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "An unexpected error occurred",
		}
	}
}
