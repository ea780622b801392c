package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/logger"
)

func TestUploadServesStoredFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := echo.New()
	NewUploadHandler(logger.Discard(), "/upload", dir).Register(e)

	for _, target := range []string{"/upload/a.png", "/app/upload/a.png"} {
		rec := serve(e, http.MethodGet, target, "")
		if rec.Code != http.StatusOK || rec.Body.String() != "png" {
			t.Fatalf("%s: status = %d body = %q", target, rec.Code, rec.Body.String())
		}
	}
	if rec := serve(e, http.MethodGet, "/upload/missing.png", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}
	if !IsPublicPath(http.MethodGet, "/upload/*") {
		t.Fatal("uploads should be public")
	}
}
