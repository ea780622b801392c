package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/rag"
)

// KnowledgeSearcher runs a raw similarity search over the knowledge base.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]rag.Chunk, error)
}

type KnowledgeHandler struct {
	searcher KnowledgeSearcher
	logger   *slog.Logger
}

func NewKnowledgeHandler(log *slog.Logger, searcher KnowledgeSearcher) *KnowledgeHandler {
	return &KnowledgeHandler{
		searcher: searcher,
		logger:   log.With(slog.String("handler", "knowledge")),
	}
}

func (h *KnowledgeHandler) Register(e *echo.Echo) {
	e.GET("/knowledge-base/search", h.Search)
}

// Search godoc
// @Summary Search the knowledge base
// @Tags knowledge
// @Param query query string true "search text"
// @Success 200 {array} rag.Chunk
// @Failure 400 {object} ErrorResponse
// @Router /knowledge-base/search [get]
func (h *KnowledgeHandler) Search(c echo.Context) error {
	chunks, err := h.searcher.Search(c.Request().Context(), c.QueryParam("query"))
	if err != nil {
		h.logger.Warn("knowledge search failed", slog.Any("error", err))
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, chunks)
}
