package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/auth"
)

type AuthHandler struct {
	secret    string
	expiresIn time.Duration
	logger    *slog.Logger
}

type tokenResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	Staff     auth.Staff `json:"staff"`
}

func NewAuthHandler(log *slog.Logger, secret string, expiresIn time.Duration) *AuthHandler {
	return &AuthHandler{
		secret:    secret,
		expiresIn: expiresIn,
		logger:    log.With(slog.String("handler", "auth")),
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.GET("/auth/me", h.Me)
	e.POST("/auth/refresh", h.Refresh)
}

func (h *AuthHandler) Me(c echo.Context) error {
	staff, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, staff)
}

// Refresh godoc
// @Summary Reissue the caller's token with its original lifetime
// @Tags auth
// @Success 200 {object} tokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	staff, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	token, expiresAt, err := auth.RefreshTokenFromContext(c, h.secret, h.expiresIn)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt, Staff: staff})
}
