// Package conversation runs customer and staff turns: persistence, handoff,
// bot replies, realtime fan-out and platform delivery.
package conversation

import (
	"time"

	"github.com/omnidesk/omnidesk/internal/message"
	"github.com/omnidesk/omnidesk/internal/session"
)

// FrameTypeProfile marks profile update frames sent to staff.
const FrameTypeProfile = "customer_info_update"

// Frame is a message as pushed to customer and staff sockets.
type Frame struct {
	ID               int64              `json:"id"`
	SessionID        int64              `json:"chat_session_id"`
	SenderType       message.SenderType `json:"sender_type"`
	SenderName       string             `json:"sender_name"`
	Content          string             `json:"content"`
	Image            []string           `json:"image"`
	SessionName      string             `json:"session_name"`
	SessionStatus    session.Status     `json:"session_status"`
	CurrentReceiver  string             `json:"current_receiver"`
	PreviousReceiver string             `json:"previous_receiver"`
	Time             *time.Time         `json:"time,omitempty"`
	Channel          string             `json:"channel"`
	CreatedAt        time.Time          `json:"created_at"`
}

func newFrame(m message.Message, s session.Session) Frame {
	images := m.Attachments
	if images == nil {
		images = []string{}
	}
	return Frame{
		ID:               m.ID,
		SessionID:        s.ID,
		SenderType:       m.SenderType,
		SenderName:       m.SenderName,
		Content:          m.Content,
		Image:            images,
		SessionName:      s.Name,
		SessionStatus:    s.Status,
		CurrentReceiver:  s.CurrentOwner,
		PreviousReceiver: s.PreviousOwner,
		Time:             s.PauseUntil,
		Channel:          string(s.Channel),
		CreatedAt:        m.CreatedAt,
	}
}

// ProfileFrame tells staff consoles that a customer's profile changed.
type ProfileFrame struct {
	SessionID    int64             `json:"chat_session_id"`
	CustomerData map[string]string `json:"customer_data"`
	Type         string            `json:"type"`
}

// StaffInput is a staff-authored message for one session.
type StaffInput struct {
	SessionID int64
	Staff     string
	Content   string
	Images    []string
}

// Customer is a session with its collected profile.
type Customer struct {
	session.Session
	CustomerData map[string]string `json:"customer_data"`
}

// Dashboard summarizes traffic per channel.
type Dashboard struct {
	TotalSessions int64                  `json:"total_sessions"`
	TotalMessages int64                  `json:"total_messages"`
	Sessions      []session.ChannelCount `json:"sessions_by_channel"`
	Messages      []message.ChannelCount `json:"messages_by_channel"`
}

// BulkResult reports a bulk staff send.
type BulkResult struct {
	Sent   []int64          `json:"sent"`
	Failed map[int64]string `json:"failed,omitempty"`
}
