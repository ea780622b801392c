package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/profile"
	"github.com/omnidesk/omnidesk/internal/session"
)

// TagStore is the tag CRUD surface.
type TagStore interface {
	List(ctx context.Context) ([]session.Tag, error)
	Create(ctx context.Context, t session.Tag) (session.Tag, error)
	Update(ctx context.Context, t session.Tag) (session.Tag, error)
	Delete(ctx context.Context, id int64) error
}

// FieldStore is the field configuration CRUD surface.
type FieldStore interface {
	List(ctx context.Context) ([]profile.FieldConfig, error)
	Create(ctx context.Context, f profile.FieldConfig) (profile.FieldConfig, error)
	Update(ctx context.Context, f profile.FieldConfig) (profile.FieldConfig, error)
	Delete(ctx context.Context, id int64) error
}

// SettingsHandler manages tags and profile field configuration.
type SettingsHandler struct {
	tags   TagStore
	fields FieldStore
	logger *slog.Logger
}

func NewSettingsHandler(log *slog.Logger, tags TagStore, fields FieldStore) *SettingsHandler {
	return &SettingsHandler{
		tags:   tags,
		fields: fields,
		logger: log.With(slog.String("handler", "settings")),
	}
}

func (h *SettingsHandler) Register(e *echo.Echo) {
	tags := e.Group("/tags")
	tags.GET("", h.ListTags)
	tags.POST("", h.CreateTag)
	tags.PUT("/:id", h.UpdateTag)
	tags.DELETE("/:id", h.DeleteTag)

	fields := e.Group("/field-config")
	fields.GET("", h.ListFields)
	fields.POST("", h.CreateField)
	fields.PUT("/:id", h.UpdateField)
	fields.DELETE("/:id", h.DeleteField)
}

type tagRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
}

type fieldRequest struct {
	FieldName string `json:"excel_column_name" validate:"required"`
	Required  bool   `json:"is_required"`
	Column    string `json:"excel_column_letter" validate:"omitempty,alpha"`
}

// ListTags godoc
// @Summary List tags
// @Tags tags
// @Success 200 {array} session.Tag
// @Router /tags [get]
func (h *SettingsHandler) ListTags(c echo.Context) error {
	items, err := h.tags.List(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []session.Tag{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SettingsHandler) CreateTag(c echo.Context) error {
	var req tagRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tag, err := h.tags.Create(c.Request().Context(), session.Tag{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, tag)
}

func (h *SettingsHandler) UpdateTag(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req tagRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	tag, err := h.tags.Update(c.Request().Context(), session.Tag{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Color:       req.Color,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, tag)
}

func (h *SettingsHandler) DeleteTag(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.tags.Delete(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListFields godoc
// @Summary List profile fields in column order
// @Tags field-config
// @Success 200 {array} profile.FieldConfig
// @Router /field-config [get]
func (h *SettingsHandler) ListFields(c echo.Context) error {
	items, err := h.fields.List(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []profile.FieldConfig{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *SettingsHandler) CreateField(c echo.Context) error {
	var req fieldRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	f, err := h.fields.Create(c.Request().Context(), profile.FieldConfig{
		FieldName: req.FieldName,
		Required:  req.Required,
		Column:    req.Column,
	})
	if err != nil {
		return toHTTPError(err)
	}
	h.logger.Info("field config created", slog.String("field", f.FieldName))
	return c.JSON(http.StatusCreated, f)
}

func (h *SettingsHandler) UpdateField(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req fieldRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	f, err := h.fields.Update(c.Request().Context(), profile.FieldConfig{
		ID:        id,
		FieldName: req.FieldName,
		Required:  req.Required,
		Column:    req.Column,
	})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *SettingsHandler) DeleteField(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.fields.Delete(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
