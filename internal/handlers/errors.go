package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/profile"
	"github.com/omnidesk/omnidesk/internal/rag"
	"github.com/omnidesk/omnidesk/internal/session"
)

// ErrorResponse is the JSON body of a failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

var validate = validator.New()

// bindAndValidate binds the request into req and checks its validate tags.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// toHTTPError maps domain errors to HTTP status codes.
func toHTTPError(err error) error {
	var httpErr *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &httpErr):
		return httpErr
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrTagNotFound), errors.Is(err, profile.ErrFieldNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrInvalidStatus),
		errors.Is(err, session.ErrInvalidSession),
		errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, profile.ErrInvalidField),
		errors.Is(err, rag.ErrEmptyQuery),
		errors.Is(err, channel.ErrUnsupportedChannel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, channel.ErrQueueFull):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
