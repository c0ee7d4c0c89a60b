package shared

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Failure categories. Every error raised inside the core wraps exactly one of
// the first four so callers can decide between retry, fallback and giving up.
var (
	ErrTransport  = errors.New("transport")
	ErrProtocol   = errors.New("protocol")
	ErrCapability = errors.New("capability")
	ErrTimeout    = errors.New("timeout")

	ErrNotFound = errors.New("not found")
)

// Classify names the category of err for logging. Unknown errors are reported
// as "internal".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrCapability):
		return "capability"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "internal"
	}
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) ToHTTP(status int) *echo.HTTPError {
	return echo.NewHTTPError(status, e)
}

func BadRequest(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusBadRequest)
}

func NotFound(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusNotFound)
}

func Unavailable(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusServiceUnavailable)
}

func InternalError(code, message string) *echo.HTTPError {
	return NewAPIError(code, message).ToHTTP(http.StatusInternalServerError)
}
