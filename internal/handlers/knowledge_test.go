package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/logger"
	"github.com/omnidesk/omnidesk/internal/rag"
)

type embedOnce struct{ calls int }

func (e *embedOnce) Embed(context.Context, string) ([]float32, error) {
	e.calls++
	return []float32{1}, nil
}

type fixedRetriever []rag.Chunk

func (r fixedRetriever) Search(context.Context, []float32, int) ([]rag.Chunk, error) {
	return append([]rag.Chunk(nil), r...), nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, string) (string, error) {
	return "", errors.New("generation must not run")
}

func TestKnowledgeSearch(t *testing.T) {
	t.Parallel()

	emb := &embedOnce{}
	ret := fixedRetriever{{Text: "Học phí HSK3 là 3 triệu", Score: 0.2}, {Text: "Lịch khai giảng", Score: 0.1}}
	o := rag.NewOrchestrator(logger.Discard(), failingGenerator{}, emb, ret, nil, 5)
	e := echo.New()
	NewKnowledgeHandler(logger.Discard(), o).Register(e)

	rec := serve(e, http.MethodGet, "/knowledge-base/search?query=hoc+phi", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chunks []rag.Chunk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunks))
	require.Len(t, chunks, 2)
	assert.Equal(t, "Lịch khai giảng", chunks[0].Text)
	assert.Equal(t, 1, emb.calls)

	rec = serve(e, http.MethodGet, "/knowledge-base/search?query=+", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, emb.calls)

	assert.False(t, IsPublicPath(http.MethodGet, "/knowledge-base/search"))
}
