package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/glimpse/internal/inference"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// errorStatus maps an engine or request error to an HTTP status and error
// type.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, inference.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, inference.ErrBusy):
		return http.StatusTooManyRequests, "engine_busy"
	case errors.Is(err, inference.ErrClosed):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, inference.ErrTokenize):
		return http.StatusInternalServerError, "tokenization_error"
	case errors.Is(err, inference.ErrTensor):
		return http.StatusInternalServerError, "tensor_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg)
}

func writeFailure(c *echo.Context, err error) error {
	status, typ := errorStatus(err)
	return writeError(c, status, typ, err.Error())
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}
