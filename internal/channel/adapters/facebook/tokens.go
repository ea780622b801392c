package facebook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/db"
)

// TokenStore resolves the page access token used for outbound calls.
type TokenStore interface {
	PageToken(ctx context.Context, pageID string) (string, error)
}

// StaticTokens serves tokens from configuration.
type StaticTokens map[string]string

func (s StaticTokens) PageToken(_ context.Context, pageID string) (string, error) {
	if tok := strings.TrimSpace(s[pageID]); tok != "" {
		return tok, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoPageToken, pageID)
}

// Page is a Messenger page connected through the OAuth flow.
type Page struct {
	PageID      string    `json:"page_id"`
	Name        string    `json:"name"`
	AccessToken string    `json:"-"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PageRepository persists connected pages.
type PageRepository struct {
	db db.DBTX
}

func NewPageRepository(conn db.DBTX) *PageRepository {
	return &PageRepository{db: conn}
}

// Upsert stores or refreshes a page token.
func (r *PageRepository) Upsert(ctx context.Context, page Page) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO facebook_page (page_id, name, access_token, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (page_id) DO UPDATE
SET name = EXCLUDED.name, access_token = EXCLUDED.access_token, updated_at = now()`,
		page.PageID, page.Name, page.AccessToken)
	if err != nil {
		return fmt.Errorf("upsert facebook page: %w", err)
	}
	return nil
}

// List returns connected pages without their tokens.
func (r *PageRepository) List(ctx context.Context) ([]Page, error) {
	rows, err := r.db.Query(ctx, `SELECT page_id, name, updated_at FROM facebook_page ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list facebook pages: %w", err)
	}
	defer rows.Close()
	var out []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.PageID, &p.Name, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PageRepository) PageToken(ctx context.Context, pageID string) (string, error) {
	var token string
	err := r.db.QueryRow(ctx, `SELECT access_token FROM facebook_page WHERE page_id = $1`, pageID).Scan(&token)
	if err != nil {
		if db.IsNoRows(err) {
			return "", fmt.Errorf("%w: %s", ErrNoPageToken, pageID)
		}
		return "", fmt.Errorf("load facebook page token: %w", err)
	}
	return token, nil
}

// ChainTokens tries each store in order and returns the first token found.
type ChainTokens []TokenStore

func (c ChainTokens) PageToken(ctx context.Context, pageID string) (string, error) {
	var lastErr error = fmt.Errorf("%w: %s", ErrNoPageToken, pageID)
	for _, s := range c {
		if s == nil {
			continue
		}
		tok, err := s.PageToken(ctx, pageID)
		if err == nil && tok != "" {
			return tok, nil
		}
		if err != nil {
			lastErr = err
		}
	}
	return "", lastErr
}
