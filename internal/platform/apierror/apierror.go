// Package apierror renders every failed request as
// {"code": "...", "message": "...", "current_status": "..."}.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeMissingQueue      = "MISSING_OPERATIONAL_DATA"
	CodeInternal          = "INTERNAL"
)

// Error is returned by handlers and written by Handler.
type Error struct {
	Status        int               `json:"-"`
	Code          string            `json:"code"`
	Message       string            `json:"message"`
	CurrentStatus string            `json:"current_status,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, CodeInternal, err.Error())
}

// Validation converts validator errors into a 400 listing the failing tag
// per field. Other errors become a plain bad request.
func Validation(err error) *Error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return BadRequest(err.Error())
	}
	fields := make(map[string]string, len(ve))
	names := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields[fe.Field()] = fe.Tag()
		names = append(names, fe.Field())
	}
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeValidation,
		Message: "invalid fields: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}

// Handler is the echo error handler. *Error values are written as they are,
// *echo.HTTPError values are mapped onto the same body shape.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *Error
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
		case errors.As(err, &httpErr):
			apiErr = fromHTTPError(httpErr)
		default:
			apiErr = Internal(err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(apiErr.Status)
		} else {
			err = c.JSON(apiErr.Status, apiErr)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		msg = m
	}
	code := CodeBadRequest
	switch {
	case he.Code == http.StatusUnauthorized:
		code = CodeUnauthorized
	case he.Code == http.StatusForbidden:
		code = CodeForbidden
	case he.Code == http.StatusNotFound:
		code = CodeNotFound
	case he.Code >= http.StatusInternalServerError:
		code = CodeInternal
	case he.Code != http.StatusBadRequest:
		code = strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_"))
	}
	return &Error{Status: he.Code, Code: code, Message: msg}
}
