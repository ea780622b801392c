package message

import (
	"context"
	"errors"
	"time"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderBot      SenderType = "bot"
	SenderStaff    SenderType = "staff"
)

// Valid reports whether t is a known sender type.
func (t SenderType) Valid() bool {
	switch t {
	case SenderCustomer, SenderBot, SenderStaff:
		return true
	}
	return false
}

var ErrInvalidSender = errors.New("invalid sender type")

// Message is an append-only conversation record. Attachments holds opaque
// image references (URLs or data URLs) in send order.
type Message struct {
	ID          int64      `json:"id"`
	SessionID   int64      `json:"chat_session_id"`
	SenderType  SenderType `json:"sender_type"`
	SenderName  string     `json:"sender_name"`
	Content     string     `json:"content"`
	Attachments []string   `json:"image"`
	CreatedAt   time.Time  `json:"created_at"`
}

// PersistInput is the input for persisting a message.
type PersistInput struct {
	SessionID   int64
	SenderType  SenderType
	SenderName  string
	Content     string
	Attachments []string
}

// ChannelCount is a per-channel message total.
type ChannelCount struct {
	Channel string `json:"channel"`
	Total   int64  `json:"total"`
}

// Repository is the durable message store.
type Repository interface {
	Create(ctx context.Context, input PersistInput) (Message, error)
	// ListLatest returns up to limit most recent messages in chronological order.
	ListLatest(ctx context.Context, sessionID int64, limit int) ([]Message, error)
	// ListPage returns one page counted from the newest message, in chronological order.
	ListPage(ctx context.Context, sessionID int64, offset, limit int) ([]Message, error)
	Delete(ctx context.Context, sessionID int64, ids []int64) (int64, error)
	CountByChannel(ctx context.Context) ([]ChannelCount, error)
}
