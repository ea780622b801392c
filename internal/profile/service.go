package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omnidesk/omnidesk/internal/events"
	"github.com/omnidesk/omnidesk/internal/message"
)

// HistoryWindow is how many recent messages feed an extraction.
const HistoryWindow = 15

// Event types published on profile changes.
const (
	EventProfileUpdated = "customer.profile.updated"
	EventSheetRow       = "customer.sheet.row"
)

// History loads recent messages of a session.
type History interface {
	Latest(ctx context.Context, sessionID int64, n int) ([]message.Message, error)
}

// AlertSetter flags a session for staff attention.
type AlertSetter interface {
	SetAlert(ctx context.Context, id int64, alert bool) error
}

// Topics names the Kafka topics for profile events.
type Topics struct {
	Profile   string
	SheetSync string
}

// SheetCell is one column of an exported customer row.
type SheetCell struct {
	Column string `json:"column"`
	Header string `json:"header"`
	Value  string `json:"value"`
}

// Service runs extraction and merges the result into the stored profile.
type Service struct {
	repo      Repository
	fields    *FieldSource
	history   History
	generator Generator
	alerts    AlertSetter
	publisher events.Publisher
	topics    Topics
	logger    *slog.Logger
}

type Deps struct {
	Repo      Repository
	Fields    *FieldSource
	History   History
	Generator Generator
	Alerts    AlertSetter
	Publisher events.Publisher
	Topics    Topics
}

func NewService(log *slog.Logger, deps Deps) *Service {
	pub := deps.Publisher
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Service{
		repo:      deps.Repo,
		fields:    deps.Fields,
		history:   deps.History,
		generator: deps.Generator,
		alerts:    deps.Alerts,
		publisher: pub,
		topics:    deps.Topics,
		logger:    log.With(slog.String("service", "profile")),
	}
}

// Get returns the stored profile data, empty when none exists yet.
func (s *Service) Get(ctx context.Context, sessionID int64) (map[string]string, error) {
	p, ok, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]string{}, nil
	}
	return p.Data, nil
}

// GetMany returns stored profiles keyed by session id.
func (s *Service) GetMany(ctx context.Context, sessionIDs []int64) (map[int64]Profile, error) {
	if len(sessionIDs) == 0 {
		return map[int64]Profile{}, nil
	}
	return s.repo.GetMany(ctx, sessionIDs)
}

// Fields returns the cached field configuration.
func (s *Service) Fields(ctx context.Context) []FieldConfig {
	return s.fields.Fields(ctx)
}

// Extract asks the generator for the configured fields found in the recent
// history. It returns nil when there is nothing to extract.
func (s *Service) Extract(ctx context.Context, sessionID int64) (map[string]any, error) {
	names := Names(s.fields.Fields(ctx))
	if len(names) == 0 {
		return nil, nil
	}
	msgs, err := s.history.Latest(ctx, sessionID, HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	transcript := message.Transcript(msgs)
	if strings.TrimSpace(transcript) == "" {
		return nil, nil
	}
	raw, err := s.generator.Generate(ctx, BuildExtractionPrompt(names, transcript))
	if err != nil {
		return nil, fmt.Errorf("generate extraction: %w", err)
	}
	return ParseExtraction(raw, names)
}

// Refresh extracts, merges and stores new customer data. It returns nil when
// nothing new was learned; in that case the alert flag is left untouched.
func (s *Service) Refresh(ctx context.Context, sessionID int64) (*Update, error) {
	partial, err := s.Extract(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(Clean(partial)) == 0 {
		return nil, nil
	}
	existing, found, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	merged, changed := Merge(existing.Data, partial)
	if !changed {
		return nil, nil
	}
	if err := s.repo.Upsert(ctx, sessionID, merged); err != nil {
		return nil, fmt.Errorf("store profile: %w", err)
	}
	if s.alerts != nil {
		if err := s.alerts.SetAlert(ctx, sessionID, true); err != nil {
			s.logger.Warn("set alert failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		}
	}
	update := &Update{SessionID: sessionID, Data: merged, Created: !found}
	s.publish(ctx, *update)
	s.logger.Info("customer profile updated", slog.Int64("session_id", sessionID), slog.Int("fields", len(merged)))
	return update, nil
}

func (s *Service) publish(ctx context.Context, u Update) {
	key := fmt.Sprintf("%d", u.SessionID)
	if s.topics.Profile != "" {
		if err := s.publisher.Publish(ctx, s.topics.Profile, key, events.NewEnvelope(EventProfileUpdated, u)); err != nil {
			s.logger.Warn("publish profile event failed", slog.Int64("session_id", u.SessionID), slog.Any("error", err))
		}
	}
	if s.topics.SheetSync != "" {
		row := SheetRow(s.fields.Fields(ctx), u.Data)
		if err := s.publisher.Publish(ctx, s.topics.SheetSync, key, events.NewEnvelope(EventSheetRow, row)); err != nil {
			s.logger.Warn("publish sheet row failed", slog.Int64("session_id", u.SessionID), slog.Any("error", err))
		}
	}
}

// SheetRow lays out profile data in spreadsheet column order.
func SheetRow(fields []FieldConfig, data map[string]string) []SheetCell {
	ordered := append([]FieldConfig(nil), fields...)
	SortFields(ordered)
	row := make([]SheetCell, 0, len(ordered))
	for _, f := range ordered {
		row = append(row, SheetCell{Column: f.Column, Header: f.FieldName, Value: data[f.FieldName]})
	}
	return row
}
