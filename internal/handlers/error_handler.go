package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"subkeeper/internal/common"
	"subkeeper/internal/logger"
)

// retryAfterSeconds is advertised on ConcurrencyTimeout responses.
const retryAfterSeconds = "1"

// NewHTTPErrorHandler renders every error as an ErrorResponse. AppErrors map
// through their kind; echo errors (routing, binding, auth) keep their status.
func NewHTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = logger.Discard()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := renderError(err)
		if common.IsRetryable(err) {
			c.Response().Header().Set("Retry-After", retryAfterSeconds)
		}
		if status >= http.StatusInternalServerError {
			log.ErrorContext(c.Request().Context(), "request error",
				slog.String("code", body.Error.Code), logger.Error(err))
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			log.ErrorContext(c.Request().Context(), "failed to write error response", logger.Error(writeErr))
		}
	}
}

func renderError(err error) (int, *common.ErrorResponse) {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		message := appErr.Reason
		if message == "" {
			message = string(appErr.Kind)
		}
		return appErr.StatusCode(), common.CreateErrorResponse(string(appErr.Kind), message, nil)
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := http.StatusText(httpErr.Code)
		if httpErr.Message != nil {
			message = fmt.Sprint(httpErr.Message)
		}
		return httpErr.Code, common.CreateErrorResponse(httpErrorCode(httpErr.Code), message, nil)
	}

	return http.StatusInternalServerError,
		common.CreateErrorResponse(string(common.KindInternal), "Internal server error", nil)
}

func httpErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusNotFound:
		return string(common.KindNotFound)
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		if status >= http.StatusInternalServerError {
			return string(common.KindInternal)
		}
		return "HTTP_ERROR"
	}
}
