package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/toastd/internal/errors"
	"github.com/tphakala/toastd/internal/logger"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

func newErrorResponse(err error, message string) ErrorResponse {
	errStr := message
	if err != nil {
		errStr = err.Error()
	}
	return ErrorResponse{
		Error:         errStr,
		Message:       message,
		CorrelationID: uuid.NewString()[:8],
	}
}

// respondError logs the failure with a correlation id and writes it to the client
func respondError(c echo.Context, err error, message string, code int) error {
	resp := newErrorResponse(err, message)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("path", c.Path()),
		logger.Int("status", code),
		logger.String("ip", c.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Debug(message, fields...)
	}

	return c.JSON(code, resp)
}

// notFound reports an unknown toast id
func notFound(c echo.Context, id string) error {
	err := errors.New(errors.ErrToastNotFound).
		Component("http").
		Category(errors.CategoryNotFound).
		Context(errors.ContextToastID, id).
		Build()
	return respondError(c, err, "toast not found", http.StatusNotFound)
}

func badRequest(c echo.Context, err error, message string) error {
	return respondError(c, err, message, http.StatusBadRequest)
}
