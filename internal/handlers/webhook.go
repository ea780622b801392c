package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
)

const maxWebhookBody = 1 << 20

// WebhookQueue accepts raw webhook bodies for background processing.
type WebhookQueue interface {
	Enqueue(ctx context.Context, channelType channel.ChannelType, raw []byte) error
}

// RateLimiter admits or rejects one request under key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WebhookHandler receives platform webhooks and acknowledges them immediately.
type WebhookHandler struct {
	queue       WebhookQueue
	limiter     RateLimiter
	verifyToken string
	logger      *slog.Logger
}

func NewWebhookHandler(log *slog.Logger, queue WebhookQueue, limiter RateLimiter, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		queue:       queue,
		limiter:     limiter,
		verifyToken: verifyToken,
		logger:      log.With(slog.String("handler", "webhook")),
	}
}

func (h *WebhookHandler) Register(e *echo.Echo) {
	e.GET("/chat/webhook/fb", h.VerifyFacebook, h.rateLimit)
	e.POST("/chat/webhook/fb", h.receive(channel.Facebook), h.rateLimit)
	e.POST("/chat/webhook/telegram", h.receive(channel.Telegram), h.rateLimit)
	e.POST("/chat/zalo/webhook", h.receive(channel.Zalo), h.rateLimit)
}

// VerifyFacebook godoc
// @Summary Messenger webhook verification
// @Tags webhook
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Verify token"
// @Param hub.challenge query string true "Challenge echoed back"
// @Success 200 {string} string
// @Failure 403 {object} ErrorResponse
// @Router /chat/webhook/fb [get]
func (h *WebhookHandler) VerifyFacebook(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	return c.String(http.StatusOK, c.QueryParam("hub.challenge"))
}

// receive enqueues the body and returns 200 without waiting for processing.
// Bodies that fail later are logged by the worker and never retried by the
// platform.
func (h *WebhookHandler) receive(ct channel.ChannelType) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
		}
		if err := h.queue.Enqueue(c.Request().Context(), ct, body); err != nil {
			if errors.Is(err, channel.ErrQueueFull) {
				return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
			}
			h.logger.Error("enqueue webhook failed", slog.String("channel", ct.String()), slog.Any("error", err))
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

// rateLimit rejects callers over the configured window. Limiter failures
// let the request through.
func (h *WebhookHandler) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.limiter == nil {
			return next(c)
		}
		key := "webhook:" + c.RealIP()
		ok, err := h.limiter.Allow(c.Request().Context(), key)
		if err != nil {
			h.logger.Warn("rate limiter unavailable", slog.Any("error", err))
			return next(c)
		}
		if !ok {
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
