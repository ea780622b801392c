package channel

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g., "telegram", "facebook").
type ChannelType string

const (
	Web      ChannelType = "web"
	Facebook ChannelType = "facebook"
	Telegram ChannelType = "telegram"
	Zalo     ChannelType = "zalo"
)

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// Prefix returns the two-character thread name prefix for the channel.
func (c ChannelType) Prefix() string {
	switch c {
	case Web:
		return "W-"
	case Facebook:
		return "F-"
	case Telegram:
		return "T-"
	case Zalo:
		return "Z-"
	}
	return ""
}

// ErrUnsupportedChannel is returned for channel names outside the known set.
var ErrUnsupportedChannel = errors.New("unsupported channel type")

// ParseChannelType normalizes raw and checks it against the known channels.
// "fb", "tele" and "tg" are accepted as aliases.
func ParseChannelType(raw string) (ChannelType, error) {
	switch normalizeChannelType(raw) {
	case Web:
		return Web, nil
	case Facebook, "fb":
		return Facebook, nil
	case Telegram, "tele", "tg":
		return Telegram, nil
	case Zalo:
		return Zalo, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedChannel, raw)
}

func normalizeChannelType(raw string) ChannelType {
	return ChannelType(strings.ToLower(strings.TrimSpace(raw)))
}

// ThreadName builds the channel-scoped session name for a platform user id.
func ThreadName(ct ChannelType, externalID string) string {
	return ct.Prefix() + strings.TrimSpace(externalID)
}

// RecipientFromThread strips the two-character channel prefix from a thread name.
func RecipientFromThread(name string) string {
	if len(name) <= 2 {
		return ""
	}
	return name[2:]
}

// UnsupportedContentText replaces the body of any inbound message that carries no text.
const UnsupportedContentText = "Hiện tại hệ thống chỉ hỗ trợ tin nhắn dạng text. Vui lòng gửi lại tin nhắn bằng văn bản."

// Inbound is a platform message normalized to the canonical shape. Web frames
// carry SessionID instead of a thread name since the widget session exists
// before the first message.
type Inbound struct {
	Channel     ChannelType    `json:"channel"`
	ThreadName  string         `json:"thread_name"`
	SessionID   int64          `json:"chat_session_id,omitempty"`
	SenderID    string         `json:"sender_id"`
	PageID      string         `json:"page_id,omitempty"`
	Text        string         `json:"text"`
	Attachments []string       `json:"attachments,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// Outbound is a reply addressed to one platform recipient.
type Outbound struct {
	Channel   ChannelType `json:"channel"`
	PageID    string      `json:"page_id,omitempty"`
	Recipient string      `json:"recipient"`
	Text      string      `json:"text"`
	Images    []string    `json:"images,omitempty"`
}

// IsEmpty reports whether there is nothing to deliver.
func (o Outbound) IsEmpty() bool {
	return strings.TrimSpace(o.Text) == "" && len(o.Images) == 0
}
