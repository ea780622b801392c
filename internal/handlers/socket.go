package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/auth"
	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/message"
	"github.com/omnidesk/omnidesk/internal/realtime"
	"github.com/omnidesk/omnidesk/internal/session"
)

// TurnRunner runs customer and staff turns arriving over sockets.
type TurnRunner interface {
	Session(ctx context.Context, id int64) (session.Session, error)
	HandleInbound(ctx context.Context, in channel.Inbound) error
	StaffTurn(ctx context.Context, in conversation.StaffInput, from *realtime.Conn) (conversation.Frame, error)
}

// SocketHub registers live sockets.
type SocketHub interface {
	ConnectCustomer(sessionID int64, c *realtime.Conn)
	DisconnectCustomer(c *realtime.Conn)
	ConnectStaff(c *realtime.Conn)
	DisconnectStaff(c *realtime.Conn)
}

// SocketHandler serves the widget and console websockets.
type SocketHandler struct {
	runner     TurnRunner
	hub        SocketHub
	normalizer channel.Normalizer
	logger     *slog.Logger
}

// NewSocketHandler creates a SocketHandler. Frames from both sockets share the
// widget frame shape and are decoded by normalizer.
func NewSocketHandler(log *slog.Logger, runner TurnRunner, hub SocketHub, normalizer channel.Normalizer) *SocketHandler {
	return &SocketHandler{
		runner:     runner,
		hub:        hub,
		normalizer: normalizer,
		logger:     log.With(slog.String("handler", "socket")),
	}
}

func (h *SocketHandler) Register(e *echo.Echo) {
	e.GET("/chat/ws/customer", h.Customer)
	e.GET("/chat/ws/admin", h.Admin)
}

// Customer godoc
// @Summary Customer widget socket
// @Tags realtime
// @Param sessionId query int true "Web session id"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/ws/customer [get]
func (h *SocketHandler) Customer(c echo.Context) error {
	sessionID, err := strconv.ParseInt(c.QueryParam("sessionId"), 10, 64)
	if err != nil || sessionID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "sessionId is required")
	}
	sess, err := h.runner.Session(c.Request().Context(), sessionID)
	if err != nil {
		h.logger.Warn("customer socket for unknown session", slog.Int64("session_id", sessionID), slog.Any("error", err))
		return toHTTPError(err)
	}
	if sess.Channel != channel.Web {
		return echo.NewHTTPError(http.StatusBadRequest, "session is not a web session")
	}

	ws, err := realtime.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("customer socket upgrade failed", slog.Any("error", err))
		return nil
	}
	conn := realtime.NewConn(ws, sessionID, "")
	h.hub.ConnectCustomer(sessionID, conn)
	defer h.hub.DisconnectCustomer(conn)

	ctx := c.Request().Context()
	go conn.WritePump()
	conn.ReadPump(func(payload []byte) {
		h.customerFrame(ctx, sessionID, payload)
	})
	return nil
}

func (h *SocketHandler) customerFrame(ctx context.Context, sessionID int64, payload []byte) {
	items, err := h.normalizer.Normalize(payload)
	if err != nil {
		h.logger.Warn("malformed customer frame", slog.Int64("session_id", sessionID), slog.Any("error", err))
		return
	}
	for _, in := range items {
		if in.SessionID != 0 && in.SessionID != sessionID {
			h.logger.Warn("customer frame for another session dropped",
				slog.Int64("session_id", sessionID),
				slog.Int64("frame_session_id", in.SessionID))
			continue
		}
		if st, _ := in.Meta["sender_type"].(string); st != "" && st != string(message.SenderCustomer) {
			continue
		}
		in.SessionID = sessionID
		if err := h.runner.HandleInbound(ctx, in); err != nil {
			h.logger.Error("customer turn failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		}
	}
}

// Admin godoc
// @Summary Staff console socket
// @Tags realtime
// @Param token query string true "Staff JWT"
// @Failure 401 {object} ErrorResponse
// @Router /chat/ws/admin [get]
func (h *SocketHandler) Admin(c echo.Context) error {
	staff, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	ws, err := realtime.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("staff socket upgrade failed", slog.Any("error", err))
		return nil
	}
	conn := realtime.NewConn(ws, 0, staff.Label())
	h.hub.ConnectStaff(conn)
	defer h.hub.DisconnectStaff(conn)

	ctx := c.Request().Context()
	go conn.WritePump()
	conn.ReadPump(func(payload []byte) {
		h.staffFrame(ctx, staff, conn, payload)
	})
	return nil
}

func (h *SocketHandler) staffFrame(ctx context.Context, staff auth.Staff, conn *realtime.Conn, payload []byte) {
	items, err := h.normalizer.Normalize(payload)
	if err != nil {
		h.logger.Warn("malformed staff frame", slog.String("staff", staff.ID), slog.Any("error", err))
		return
	}
	for _, in := range items {
		_, err := h.runner.StaffTurn(ctx, conversation.StaffInput{
			SessionID: in.SessionID,
			Staff:     staff.Label(),
			Content:   in.Text,
			Images:    in.Attachments,
		}, conn)
		if err != nil {
			h.logger.Error("staff turn failed",
				slog.String("staff", staff.ID),
				slog.Int64("session_id", in.SessionID),
				slog.Any("error", err))
		}
	}
}
