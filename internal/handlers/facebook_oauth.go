package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/omnidesk/omnidesk/internal/cache"
	fbadapter "github.com/omnidesk/omnidesk/internal/channel/adapters/facebook"
	"github.com/omnidesk/omnidesk/internal/config"
)

const oauthStateTTL = 10 * time.Minute

var facebookPageScopes = []string{"pages_show_list", "pages_messaging", "pages_manage_metadata"}

// PageStore persists pages connected through OAuth.
type PageStore interface {
	Upsert(ctx context.Context, page fbadapter.Page) error
	List(ctx context.Context) ([]fbadapter.Page, error)
}

// FacebookOAuthHandler connects Messenger pages and stores their tokens.
type FacebookOAuthHandler struct {
	oauth    *oauth2.Config
	graphURL string
	pages    PageStore
	states   cache.Store
	logger   *slog.Logger
}

// NewFacebookOAuthConfig builds the OAuth2 client config for page connect.
func NewFacebookOAuthConfig(cfg config.FacebookConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.AppID,
		ClientSecret: cfg.AppSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     facebook.Endpoint,
		Scopes:       facebookPageScopes,
	}
}

func NewFacebookOAuthHandler(log *slog.Logger, oauth *oauth2.Config, graphURL string, pages PageStore, states cache.Store) *FacebookOAuthHandler {
	return &FacebookOAuthHandler{
		oauth:    oauth,
		graphURL: strings.TrimRight(graphURL, "/"),
		pages:    pages,
		states:   states,
		logger:   log.With(slog.String("handler", "facebook_oauth")),
	}
}

func (h *FacebookOAuthHandler) Register(e *echo.Echo) {
	group := e.Group("/facebook")
	group.GET("/oauth/url", h.AuthURL)
	group.GET("/oauth/callback", h.Callback)
	group.GET("/pages", h.ListPages)
}

// AuthURL godoc
// @Summary Facebook login URL for connecting pages
// @Tags facebook
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /facebook/oauth/url [get]
func (h *FacebookOAuthHandler) AuthURL(c echo.Context) error {
	if h.oauth == nil || h.oauth.ClientID == "" {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "facebook app is not configured")
	}
	state := uuid.NewString()
	if err := h.states.Set(c.Request().Context(), stateKey(state), true, oauthStateTTL); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"url":   h.oauth.AuthCodeURL(state),
		"state": state,
	})
}

// Callback godoc
// @Summary OAuth callback storing page tokens
// @Tags facebook
// @Param code query string true "Authorization code"
// @Param state query string true "State from AuthURL"
// @Success 200 {array} facebook.Page
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /facebook/oauth/callback [get]
func (h *FacebookOAuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()
	if h.oauth == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "facebook app is not configured")
	}
	state := strings.TrimSpace(c.QueryParam("state"))
	code := strings.TrimSpace(c.QueryParam("code"))
	if state == "" || code == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "code and state are required")
	}
	var known bool
	ok, err := h.states.Get(ctx, stateKey(state), &known)
	if err != nil {
		return toHTTPError(err)
	}
	if !ok || !known {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown or expired state")
	}
	_ = h.states.Delete(ctx, stateKey(state))

	token, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		h.logger.Error("facebook code exchange failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "code exchange failed")
	}
	pages, err := h.fetchPages(ctx, h.oauth.Client(ctx, token))
	if err != nil {
		h.logger.Error("list facebook pages failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadGateway, "list pages failed")
	}
	for _, p := range pages {
		if err := h.pages.Upsert(ctx, p); err != nil {
			return toHTTPError(err)
		}
	}
	h.logger.Info("facebook pages connected", slog.Int("count", len(pages)))
	return c.JSON(http.StatusOK, pages)
}

func (h *FacebookOAuthHandler) ListPages(c echo.Context) error {
	pages, err := h.pages.List(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	if pages == nil {
		pages = []fbadapter.Page{}
	}
	return c.JSON(http.StatusOK, pages)
}

type accountsResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

func (h *FacebookOAuthHandler) fetchPages(ctx context.Context, client *http.Client) ([]fbadapter.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.graphURL+"/me/accounts?fields=id,name,access_token", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph api status %d", resp.StatusCode)
	}
	var body accountsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	pages := make([]fbadapter.Page, 0, len(body.Data))
	for _, d := range body.Data {
		if d.ID == "" || d.AccessToken == "" {
			continue
		}
		pages = append(pages, fbadapter.Page{PageID: d.ID, Name: d.Name, AccessToken: d.AccessToken, UpdatedAt: time.Now().UTC()})
	}
	return pages, nil
}

func stateKey(state string) string { return "fb_oauth_state:" + state }
