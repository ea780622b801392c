package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/cache"
)

const fieldCacheKey = "field_configs"

// FieldSource serves the field configuration through the cache.
type FieldSource struct {
	repo   FieldRepository
	cache  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewFieldSource(log *slog.Logger, repo FieldRepository, c cache.Store, ttl time.Duration) *FieldSource {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FieldSource{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: log.With(slog.String("service", "field_config")),
	}
}

// Fields returns the configured fields ordered by column. Lookup failures
// yield an empty list.
func (s *FieldSource) Fields(ctx context.Context) []FieldConfig {
	var fields []FieldConfig
	if s.cache != nil {
		ok, err := s.cache.Get(ctx, fieldCacheKey, &fields)
		if err != nil {
			s.logger.Warn("field cache read failed", slog.Any("error", err))
		} else if ok {
			return fields
		}
	}
	fields, err := s.load(ctx)
	if err != nil {
		s.logger.Error("load field configs failed", slog.Any("error", err))
		return nil
	}
	return fields
}

// Refresh reloads the fields from the repository into the cache.
func (s *FieldSource) Refresh(ctx context.Context) error {
	_, err := s.load(ctx)
	return err
}

// Invalidate drops the cached field list.
func (s *FieldSource) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, fieldCacheKey); err != nil {
		s.logger.Warn("field cache invalidate failed", slog.Any("error", err))
	}
}

func (s *FieldSource) List(ctx context.Context) ([]FieldConfig, error) {
	fields, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	SortFields(fields)
	return fields, nil
}

func (s *FieldSource) Create(ctx context.Context, f FieldConfig) (FieldConfig, error) {
	f = normalizeField(f)
	if err := validateField(f); err != nil {
		return FieldConfig{}, err
	}
	created, err := s.repo.Create(ctx, f)
	if err != nil {
		return FieldConfig{}, err
	}
	s.Invalidate(ctx)
	return created, nil
}

func (s *FieldSource) Update(ctx context.Context, f FieldConfig) (FieldConfig, error) {
	f = normalizeField(f)
	if err := validateField(f); err != nil {
		return FieldConfig{}, err
	}
	updated, err := s.repo.Update(ctx, f)
	if err != nil {
		return FieldConfig{}, err
	}
	s.Invalidate(ctx)
	return updated, nil
}

func (s *FieldSource) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *FieldSource) load(ctx context.Context) ([]FieldConfig, error) {
	fields, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = []FieldConfig{}
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, fieldCacheKey, fields, s.ttl); err != nil {
			s.logger.Warn("field cache write failed", slog.Any("error", err))
		}
	}
	return fields, nil
}

func normalizeField(f FieldConfig) FieldConfig {
	f.FieldName = strings.TrimSpace(f.FieldName)
	f.Column = strings.ToUpper(strings.TrimSpace(f.Column))
	return f
}

func validateField(f FieldConfig) error {
	if f.FieldName == "" {
		return fmt.Errorf("%w: field name is required", ErrInvalidField)
	}
	for _, r := range f.Column {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: column %q must be letters", ErrInvalidField, f.Column)
		}
	}
	return nil
}

// SortFields orders fields by spreadsheet column (A..Z, AA..).
func SortFields(fields []FieldConfig) {
	sort.SliceStable(fields, func(i, j int) bool {
		return columnLess(fields[i].Column, fields[j].Column)
	})
}

func columnLess(a, b string) bool {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// Split partitions field names into required and optional lists.
func Split(fields []FieldConfig) (required, optional []string) {
	for _, f := range fields {
		if f.Required {
			required = append(required, f.FieldName)
		} else {
			optional = append(optional, f.FieldName)
		}
	}
	return required, optional
}

// Names lists the field names in order.
func Names(fields []FieldConfig) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName)
	}
	return names
}

// FieldNames splits the cached configuration into required and optional names.
func (s *FieldSource) FieldNames(ctx context.Context) (required, optional []string) {
	return Split(s.Fields(ctx))
}
