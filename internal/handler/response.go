package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/acosmic/acosmibot-api/internal/domain"
)

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
	writeError(c, status, apiErr)
}

func writeError(c echo.Context, status int, apiErr APIError) {
	var jsonErr error
	if c.Request().Method == http.MethodHead {
		jsonErr = c.NoContent(status)
	} else {
		jsonErr = c.JSON(status, Envelope{Error: &apiErr})
	}
	if jsonErr != nil {
		slog.Error("failed to send error response", "error", jsonErr)
	}
}

type errorClass struct {
	status  int
	message string
}

var errorClasses = map[domain.ErrorKind]errorClass{
	domain.KindStateUnknown:        {http.StatusBadRequest, "The login state is unknown"},
	domain.KindStateExpired:        {http.StatusBadRequest, "The login state has expired"},
	domain.KindStateReplay:         {http.StatusBadRequest, "The login state was already used"},
	domain.KindInvalidInput:        {http.StatusBadRequest, "The request is invalid"},
	domain.KindValidation:          {http.StatusBadRequest, "Validation failed"},
	domain.KindUpstreamRejected:    {http.StatusBadRequest, "Discord rejected the authorization"},
	domain.KindUpstreamUnavailable: {http.StatusBadGateway, "Discord is unavailable"},
	domain.KindUpstreamProtocol:    {http.StatusBadGateway, "Discord returned an unexpected response"},
	domain.KindStoreUnavailable:    {http.StatusServiceUnavailable, "The user store is unavailable"},
	domain.KindUnauthenticated:     {http.StatusUnauthorized, "Authentication is required"},
	domain.KindInvalidSignature:    {http.StatusUnauthorized, "Invalid session token"},
	domain.KindTokenExpired:        {http.StatusUnauthorized, "Session token has expired"},
	domain.KindTokenMalformed:      {http.StatusUnauthorized, "Invalid session token"},
	domain.KindTokenRevoked:        {http.StatusUnauthorized, "Session token has been revoked"},
	domain.KindForbidden:           {http.StatusForbidden, "You do not have permission to perform this action"},
	domain.KindUserNotFound:        {http.StatusNotFound, "User not found"},
	domain.KindNotFound:            {http.StatusNotFound, "The requested resource was not found"},
}

func mapError(err error) (int, APIError) {
	// Handle echo's own HTTP errors (404, 405, etc.)
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

	kind := domain.KindOf(err)
	class, ok := errorClasses[kind]
	if !ok {
		slog.Error("unhandled error", "error", err)
		return http.StatusInternalServerError, APIError{
			Code:    string(domain.KindInternal),
			Message: "An unexpected error occurred",
		}
	}

	apiErr := APIError{Code: string(kind), Message: class.message}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		apiErr.Details = []FieldError{
			{Field: validationErr.Field, Message: validationErr.Message},
		}
	}

	if class.status >= http.StatusInternalServerError {
		slog.Error("request failed", "kind", kind, "error", err)
	}
	return class.status, apiErr
}
