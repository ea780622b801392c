package message

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Service persists and reads conversation messages.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(log *slog.Logger, repo Repository) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:   repo,
		logger: log.With(slog.String("service", "message")),
	}
}

// Persist appends a message to its session.
func (s *Service) Persist(ctx context.Context, input PersistInput) (Message, error) {
	if !input.SenderType.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidSender, input.SenderType)
	}
	if input.SessionID <= 0 {
		return Message{}, fmt.Errorf("invalid session id %d", input.SessionID)
	}
	input.SenderName = strings.TrimSpace(input.SenderName)
	msg, err := s.repo.Create(ctx, input)
	if err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}
	return msg, nil
}

// Latest returns up to n most recent messages, oldest first.
func (s *Service) Latest(ctx context.Context, sessionID int64, n int) ([]Message, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.repo.ListLatest(ctx, sessionID, n)
}

// History returns the 1-based page of a session's history. Page 1 holds the
// newest messages; each page is returned oldest first.
func (s *Service) History(ctx context.Context, sessionID int64, page, limit int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return s.repo.ListPage(ctx, sessionID, (page-1)*limit, limit)
}

// Delete removes the given messages from a session.
func (s *Service) Delete(ctx context.Context, sessionID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.repo.Delete(ctx, sessionID, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("messages deleted", slog.Int64("session_id", sessionID), slog.Int64("count", n))
	return n, nil
}

func (s *Service) CountByChannel(ctx context.Context) ([]ChannelCount, error) {
	return s.repo.CountByChannel(ctx)
}

// Transcript renders messages as "sender_type: content" lines for prompts.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" && len(m.Attachments) > 0 {
			content = "[image]"
		}
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.SenderType))
		b.WriteString(": ")
		b.WriteString(content)
	}
	return b.String()
}

// Tail returns the last n messages of msgs.
func Tail(msgs []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
