// Package attachment persists inline image uploads to disk so messages keep
// a short reference instead of the encoded payload.
package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/omnidesk/omnidesk/internal/channel/adapters/common"
)

// RoutePrefix is where stored files are served.
const RoutePrefix = "/upload"

// Store writes decoded data URLs under dir.
type Store struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewStore creates the upload dir if needed. baseURL prefixes returned
// references; empty keeps them relative to the server root.
func NewStore(log *slog.Logger, dir, baseURL string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:     abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  log.With(slog.String("component", "attachment")),
	}, nil
}

// Dir is the directory served under RoutePrefix.
func (s *Store) Dir() string { return s.dir }

// Save stores a data URL and returns its public reference. Other references
// are returned unchanged.
func (s *Store) Save(_ context.Context, ref string) (string, error) {
	if !common.IsDataURL(ref) {
		return ref, nil
	}
	img, err := common.DecodeDataURL(ref)
	if err != nil {
		return "", err
	}
	name := uuid.NewString() + filepath.Ext(img.Name)
	if err := os.WriteFile(filepath.Join(s.dir, name), img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	s.logger.Debug("attachment stored", slog.String("name", name), slog.Int("bytes", len(img.Data)))
	return s.baseURL + RoutePrefix + "/" + name, nil
}

// SaveAll stores every reference, dropping the ones that fail.
func (s *Store) SaveAll(ctx context.Context, refs []string) []string {
	if len(refs) == 0 {
		return refs
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		stored, err := s.Save(ctx, ref)
		if err != nil {
			s.logger.Warn("store attachment failed", slog.Any("error", err))
			continue
		}
		out = append(out, stored)
	}
	return out
}
