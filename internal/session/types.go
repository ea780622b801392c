// Package session owns conversation sessions: the durable record, its cached
// snapshot, and the bot/human handoff state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Status is the handoff state of a session.
type Status string

const (
	StatusAuto   Status = "auto"
	StatusPaused Status = "paused"
)

// BotOwner is the owner label while the assistant answers.
const BotOwner = "Bot"

var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidSession = errors.New("invalid session state")
	ErrInvalidStatus  = errors.New("invalid session status")
	ErrTagNotFound    = errors.New("tag not found")
	ErrDuplicate      = errors.New("session name already exists")
)

// Session is one conversation thread on one channel.
type Session struct {
	ID            int64               `json:"id"`
	Channel       channel.ChannelType `json:"channel"`
	Name          string              `json:"name"`
	Status        Status              `json:"status"`
	CurrentOwner  string              `json:"current_receiver"`
	PreviousOwner string              `json:"previous_receiver"`
	PauseUntil    *time.Time          `json:"time"`
	Alert         bool                `json:"alert"`
	OriginURL     string              `json:"url_channel"`
	PageID        string              `json:"page_id"`
	Tags          []Tag               `json:"tags"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Validate checks the ownership invariant: paused sessions have a deadline and
// a human owner, auto sessions are bot-owned with no deadline.
func (s Session) Validate() error {
	switch s.Status {
	case StatusPaused:
		if s.PauseUntil == nil {
			return fmt.Errorf("%w: paused without deadline", ErrInvalidSession)
		}
		if s.CurrentOwner == BotOwner {
			return fmt.Errorf("%w: paused but owned by bot", ErrInvalidSession)
		}
	case StatusAuto:
		if s.PauseUntil != nil {
			return fmt.Errorf("%w: auto with deadline", ErrInvalidSession)
		}
		if s.CurrentOwner != BotOwner {
			return fmt.Errorf("%w: auto but owned by %q", ErrInvalidSession, s.CurrentOwner)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, s.Status)
	}
	return nil
}

// Recipient is the platform id replies are addressed to.
func (s Session) Recipient() string {
	return channel.RecipientFromThread(s.Name)
}

// ParseStatus accepts "auto"/"paused" and the legacy "true"/"false" values.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "auto", "true":
		return StatusAuto, nil
	case "paused", "false":
		return StatusPaused, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Defaults seeds a session created lazily from an inbound message.
type Defaults struct {
	OriginURL string
	PageID    string
}

// Tag labels sessions for filtering in the console.
type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

// ListFilter narrows session listings.
type ListFilter struct {
	Channel channel.ChannelType
	TagID   int64
}

// LastMessage summarizes the newest message of a session.
type LastMessage struct {
	SenderType string    `json:"sender_type"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Overview is a session with its latest message, for the console list.
type Overview struct {
	Session
	LastMessage *LastMessage `json:"last_message"`
}

// ChannelCount is a per-channel session total.
type ChannelCount struct {
	Channel string `json:"channel"`
	Total   int64  `json:"total"`
}

// Repository is the durable session store.
type Repository interface {
	GetOrCreate(ctx context.Context, ch channel.ChannelType, name string, d Defaults) (Session, error)
	Create(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, id int64) (Session, error)
	Update(ctx context.Context, s Session) error
	SetAlert(ctx context.Context, id int64, alert bool) error
	SetTags(ctx context.Context, id int64, tagIDs []int64) error
	Delete(ctx context.Context, ids []int64) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]Session, error)
	ListOverview(ctx context.Context) ([]Overview, error)
	CountByChannel(ctx context.Context) ([]ChannelCount, error)
}

// TagRepository stores tag definitions.
type TagRepository interface {
	List(ctx context.Context) ([]Tag, error)
	Create(ctx context.Context, t Tag) (Tag, error)
	Update(ctx context.Context, t Tag) (Tag, error)
	Delete(ctx context.Context, id int64) error
}
