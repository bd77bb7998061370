package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Cybrite/your-tube/internal/common"
	"github.com/Cybrite/your-tube/internal/logging"
	"github.com/labstack/echo/v4"
)

const unauthorizedMessage = "unauthorized request"

type apiResponse struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type apiError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func respond(c echo.Context, status int, data any, message string) error {
	return c.JSON(status, apiResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// classify maps an error onto a status code and a message that is safe to
// return. Unauthorized errors share one message so clients cannot tell why
// a credential was refused.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}

	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, common.Message(err, "invalid request")
	case errors.Is(err, common.ErrorConflict), errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, common.Message(err, "resource already exists")
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, common.Message(err, "resource not found")
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, unauthorizedMessage
	case errors.Is(err, common.ErrorRateLimited):
		return http.StatusTooManyRequests, common.Message(err, "too many requests")
	case errors.Is(err, common.ErrorUpstream):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusServiceUnavailable, "service temporarily unavailable"
		}
		return http.StatusBadGateway, common.Message(err, "upstream service failed")
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func errorHandler(fallback logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ctx := c.Request().Context()
		status, msg := classify(err)
		if status >= http.StatusInternalServerError {
			logging.FromContext(ctx, fallback).Error(ctx, "request failed", "status", status, "error", err)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, apiError{StatusCode: status, Message: msg, Success: false})
	}
}
