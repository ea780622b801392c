package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/auth"
	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/message"
	"github.com/omnidesk/omnidesk/internal/session"
)

// ChatService is the session and console surface behind the chat routes.
type ChatService interface {
	CreateWebSession(ctx context.Context, originURL string) (session.Session, error)
	CheckWebSession(ctx context.Context, id int64, originURL string) (session.Session, bool, error)
	History(ctx context.Context, sessionID int64, page, limit int) ([]message.Message, error)
	SetAlert(ctx context.Context, sessionID int64, alert bool) error
	UpdateStatus(ctx context.Context, sessionID int64, status string, until *time.Time, staff string) (session.Session, error)
	SetTags(ctx context.Context, sessionID int64, tagIDs []int64) (session.Session, error)
	DeleteSessions(ctx context.Context, ids []int64) (int64, error)
	DeleteMessages(ctx context.Context, sessionID int64, ids []int64) (int64, error)
	AdminHistory(ctx context.Context) ([]session.Overview, error)
	Customers(ctx context.Context, filter session.ListFilter) ([]conversation.Customer, error)
	Dashboard(ctx context.Context) (conversation.Dashboard, error)
	BulkSend(ctx context.Context, ids []int64, staff, content string, images []string) conversation.BulkResult
}

type ChatHandler struct {
	service ChatService
	logger  *slog.Logger
}

func NewChatHandler(log *slog.Logger, service ChatService) *ChatHandler {
	return &ChatHandler{
		service: service,
		logger:  log.With(slog.String("handler", "chat")),
	}
}

func (h *ChatHandler) Register(e *echo.Echo) {
	group := e.Group("/chat")
	group.POST("/session", h.CreateSession)
	group.GET("/session/:id", h.CheckSession)
	group.GET("/history/:id", h.History)
	group.PUT("/alert/:id", h.SetAlert)
	group.PATCH("/tag/:id", h.SetTags)
	group.PATCH("/:id", h.UpdateStatus)
	group.DELETE("/chat_sessions", h.DeleteSessions)
	group.DELETE("/messages/:chatId", h.DeleteMessages)
	group.GET("/admin/history", h.AdminHistory)
	group.GET("/admin/customers", h.Customers)
	group.GET("/admin/count_by_channel", h.Dashboard)
	group.POST("/send_message", h.BulkSend)
}

type createSessionRequest struct {
	OriginURL string `json:"url_channel" query:"url_channel"`
}

type alertRequest struct {
	Alert *bool `json:"alert" validate:"required"`
}

type statusRequest struct {
	Status string     `json:"status" validate:"required"`
	Time   *time.Time `json:"time"`
}

type tagsRequest struct {
	Tags []int64 `json:"tags"`
}

type idsRequest struct {
	IDs []int64 `json:"ids" validate:"required,min=1"`
}

type bulkSendRequest struct {
	IDs     []int64  `json:"ids" validate:"required,min=1"`
	Content string   `json:"content"`
	Image   []string `json:"image"`
}

type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

// CreateSession godoc
// @Summary Open a web widget session
// @Tags chat
// @Param request body createSessionRequest false "Origin page"
// @Success 200 {object} session.Session
// @Failure 500 {object} ErrorResponse
// @Router /chat/session [post]
func (h *ChatHandler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.service.CreateWebSession(c.Request().Context(), req.OriginURL)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// CheckSession godoc
// @Summary Restore a web widget session, opening a new one when missing
// @Tags chat
// @Param id path int true "Session id"
// @Param url_channel query string false "Origin page"
// @Success 200 {object} session.Session
// @Router /chat/session/{id} [get]
func (h *ChatHandler) CheckSession(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		id = 0
	}
	sess, _, err := h.service.CheckWebSession(c.Request().Context(), id, c.QueryParam("url_channel"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// History godoc
// @Summary Paginated session history, oldest first within a page
// @Tags chat
// @Param id path int true "Session id"
// @Param page query int false "1-based page, newest first"
// @Param limit query int false "Page size"
// @Success 200 {array} message.Message
// @Failure 404 {object} ErrorResponse
// @Router /chat/history/{id} [get]
func (h *ChatHandler) History(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	msgs, err := h.service.History(c.Request().Context(), id, page, limit)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *ChatHandler) SetAlert(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req alertRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.service.SetAlert(c.Request().Context(), id, *req.Alert); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "alert": *req.Alert})
}

// UpdateStatus godoc
// @Summary Pause or resume the bot on a session
// @Tags chat
// @Param id path int true "Session id"
// @Param request body statusRequest true "auto|paused and optional pause deadline"
// @Success 200 {object} session.Session
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /chat/{id} [patch]
func (h *ChatHandler) UpdateStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	staff, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := h.service.UpdateStatus(c.Request().Context(), id, req.Status, req.Time, staff.Label())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *ChatHandler) SetTags(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req tagsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sess, err := h.service.SetTags(c.Request().Context(), id, req.Tags)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

// DeleteSessions godoc
// @Summary Delete sessions with their messages and profiles
// @Tags chat
// @Param request body idsRequest true "Session ids"
// @Success 200 {object} deletedResponse
// @Router /chat/chat_sessions [delete]
func (h *ChatHandler) DeleteSessions(c echo.Context) error {
	var req idsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	n, err := h.service.DeleteSessions(c.Request().Context(), req.IDs)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, deletedResponse{Deleted: n})
}

func (h *ChatHandler) DeleteMessages(c echo.Context) error {
	id, err := pathID(c, "chatId")
	if err != nil {
		return err
	}
	var req idsRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	n, err := h.service.DeleteMessages(c.Request().Context(), id, req.IDs)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, deletedResponse{Deleted: n})
}

func (h *ChatHandler) AdminHistory(c echo.Context) error {
	items, err := h.service.AdminHistory(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// Customers godoc
// @Summary Sessions with collected customer data
// @Tags chat
// @Param channel query string false "Channel filter"
// @Param tag_id query int false "Tag filter"
// @Success 200 {array} conversation.Customer
// @Failure 400 {object} ErrorResponse
// @Router /chat/admin/customers [get]
func (h *ChatHandler) Customers(c echo.Context) error {
	var filter session.ListFilter
	if raw := strings.TrimSpace(c.QueryParam("channel")); raw != "" {
		ct, err := channel.ParseChannelType(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.Channel = ct
	}
	if raw := strings.TrimSpace(c.QueryParam("tag_id")); raw != "" {
		tagID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || tagID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid tag_id")
		}
		filter.TagID = tagID
	}
	items, err := h.service.Customers(c.Request().Context(), filter)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ChatHandler) Dashboard(c echo.Context) error {
	d, err := h.service.Dashboard(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// BulkSend godoc
// @Summary Send one staff message to many sessions
// @Tags chat
// @Param request body bulkSendRequest true "Targets and message"
// @Success 200 {object} conversation.BulkResult
// @Failure 400 {object} ErrorResponse
// @Router /chat/send_message [post]
func (h *ChatHandler) BulkSend(c echo.Context) error {
	staff, err := auth.StaffFromContext(c)
	if err != nil {
		return err
	}
	var req bulkSendRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Image) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "content or image is required")
	}
	res := h.service.BulkSend(c.Request().Context(), req.IDs, staff.Label(), req.Content, req.Image)
	h.logger.Info("bulk send finished",
		slog.String("staff", staff.ID),
		slog.Int("sent", len(res.Sent)),
		slog.Int("failed", len(res.Failed)))
	return c.JSON(http.StatusOK, res)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}
