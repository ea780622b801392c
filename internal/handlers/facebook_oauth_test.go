package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/omnidesk/omnidesk/internal/cache"
	fbadapter "github.com/omnidesk/omnidesk/internal/channel/adapters/facebook"
	"github.com/omnidesk/omnidesk/internal/logger"
)

type memPages struct {
	mu    sync.Mutex
	pages map[string]fbadapter.Page
}

func (m *memPages) Upsert(_ context.Context, p fbadapter.Page) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pages == nil {
		m.pages = map[string]fbadapter.Page{}
	}
	m.pages[p.PageID] = p
	return nil
}

func (m *memPages) List(context.Context) ([]fbadapter.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []fbadapter.Page
	for _, p := range m.pages {
		out = append(out, p)
	}
	return out, nil
}

func newFakeGraph(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"user-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/me/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"p1","name":"Shop","access_token":"page-token"},{"id":"p2","name":"No token"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFacebookOAuthFlow(t *testing.T) {
	t.Parallel()

	graph := newFakeGraph(t)
	cfg := &oauth2.Config{
		ClientID:     "app",
		ClientSecret: "secret",
		RedirectURL:  "https://desk.example/facebook/oauth/callback",
		Endpoint: oauth2.Endpoint{
			AuthURL:  graph.URL + "/dialog/oauth",
			TokenURL: graph.URL + "/oauth/access_token",
		},
	}
	pages := &memPages{}
	e := echo.New()
	NewFacebookOAuthHandler(logger.Discard(), cfg, graph.URL, pages, cache.NewMemoryStore()).Register(e)

	rec := serve(e, http.MethodGet, "/facebook/oauth/url", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]string](t, rec)
	authURL, err := url.Parse(resp["url"])
	require.NoError(t, err)
	assert.Equal(t, resp["state"], authURL.Query().Get("state"))

	rec = serve(e, http.MethodGet, "/facebook/oauth/callback?code=abc&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(e, http.MethodGet, "/facebook/oauth/callback?code=abc&state="+resp["state"], "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, pages.pages, 1)
	assert.Equal(t, "page-token", pages.pages["p1"].AccessToken)
	assert.NotContains(t, rec.Body.String(), "page-token")

	rec = serve(e, http.MethodGet, "/facebook/oauth/callback?code=abc&state="+resp["state"], "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFacebookOAuthNotConfigured(t *testing.T) {
	t.Parallel()
	e := echo.New()
	NewFacebookOAuthHandler(logger.Discard(), &oauth2.Config{}, "", &memPages{}, cache.NewMemoryStore()).Register(e)
	rec := serve(e, http.MethodGet, "/facebook/oauth/url", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(e, http.MethodGet, "/facebook/pages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
