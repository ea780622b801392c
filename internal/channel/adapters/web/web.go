// Package web adapts the embedded website widget. Widget frames arrive over
// the customer websocket rather than a webhook, and replies leave through
// the realtime hub, so the adapter only normalizes.
package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Type is the registered ChannelType for the web widget.
const Type = channel.Web

// WebAdapter implements channel.Adapter and channel.Normalizer for widget frames.
type WebAdapter struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewWebAdapter creates a WebAdapter with the given logger.
func NewWebAdapter(log *slog.Logger) *WebAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &WebAdapter{
		logger: log.With(slog.String("adapter", "web")),
		now:    time.Now,
	}
}

func (a *WebAdapter) Type() channel.ChannelType {
	return Type
}

func (a *WebAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Website",
	}
}

// Frame is the JSON sent by the widget over the customer socket.
type Frame struct {
	SessionID  int64           `json:"chat_session_id"`
	SenderType string          `json:"sender_type"`
	Content    string          `json:"content"`
	Image      json.RawMessage `json:"image,omitempty"`
}

// Normalize decodes one widget frame. The image field may be a single
// reference or a list of references.
func (a *WebAdapter) Normalize(raw []byte) ([]channel.Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode web frame: %w", err)
	}
	images, err := decodeImages(frame.Image)
	if err != nil {
		a.logger.Warn("ignoring malformed image field", slog.Int64("session_id", frame.SessionID), slog.Any("error", err))
	}
	return []channel.Inbound{{
		Channel:     Type,
		SessionID:   frame.SessionID,
		Text:        strings.TrimSpace(frame.Content),
		Attachments: images,
		Meta:        map[string]any{"sender_type": frame.SenderType},
		ReceivedAt:  a.now().UTC(),
	}}, nil
}

func decodeImages(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compact(list), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, err
	}
	return compact([]string{single}), nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NewThreadName returns a fresh "W-" name with eight random digits.
func NewThreadName() string {
	n := 10_000_000 + rand.IntN(90_000_000)
	return channel.ThreadName(Type, strconv.Itoa(n))
}
