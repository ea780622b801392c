package handlers

import (
	"log/slog"

	"github.com/labstack/echo/v4"
)

// legacyUploadPrefix keeps links issued by the old widget bundle working.
const legacyUploadPrefix = "/app/upload"

// UploadHandler serves stored chat attachments.
type UploadHandler struct {
	dir    string
	prefix string
	logger *slog.Logger
}

func NewUploadHandler(log *slog.Logger, prefix, dir string) *UploadHandler {
	return &UploadHandler{
		dir:    dir,
		prefix: prefix,
		logger: log.With(slog.String("handler", "upload")),
	}
}

func (h *UploadHandler) Register(e *echo.Echo) {
	e.Static(h.prefix, h.dir)
	e.Static(legacyUploadPrefix, h.dir)
	h.logger.Info("serving uploads", slog.String("dir", h.dir))
}
