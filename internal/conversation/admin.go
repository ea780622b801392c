package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/web"
	"github.com/omnidesk/omnidesk/internal/message"
	"github.com/omnidesk/omnidesk/internal/session"
)

const threadNameAttempts = 3

// CreateWebSession opens a bot-owned widget session under a fresh random
// thread name.
func (s *Service) CreateWebSession(ctx context.Context, originURL string) (session.Session, error) {
	originURL = strings.TrimSpace(originURL)
	if originURL == "" {
		originURL = s.originURL
	}
	var lastErr error
	for range threadNameAttempts {
		sess, err := s.sessions.Create(ctx, session.Session{
			Channel:   channel.Web,
			Name:      web.NewThreadName(),
			OriginURL: originURL,
		})
		if err == nil {
			s.logger.Info("web session created", slog.Int64("session_id", sess.ID), slog.String("name", sess.Name))
			return sess, nil
		}
		if !errors.Is(err, session.ErrDuplicate) {
			return session.Session{}, err
		}
		lastErr = err
	}
	return session.Session{}, fmt.Errorf("create web session: %w", lastErr)
}

// CheckWebSession restores a widget session, opening a new one when the id
// is unknown or belongs to another channel.
func (s *Service) CheckWebSession(ctx context.Context, id int64, originURL string) (session.Session, bool, error) {
	if id > 0 {
		sess, err := s.sessions.Get(ctx, id)
		switch {
		case err == nil && sess.Channel == channel.Web:
			return sess, false, nil
		case err != nil && !errors.Is(err, session.ErrNotFound):
			return session.Session{}, false, err
		}
	}
	sess, err := s.CreateWebSession(ctx, originURL)
	if err != nil {
		return session.Session{}, false, err
	}
	return sess, true, nil
}

// History returns one page of a session's messages, oldest first.
func (s *Service) History(ctx context.Context, sessionID int64, page, limit int) ([]message.Message, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.History(ctx, sessionID, page, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	return msgs, nil
}

func (s *Service) SetAlert(ctx context.Context, sessionID int64, alert bool) error {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return err
	}
	return s.sessions.SetAlert(ctx, sessionID, alert)
}

// UpdateStatus applies a manual status change by staff.
func (s *Service) UpdateStatus(ctx context.Context, sessionID int64, rawStatus string, until *time.Time, staff string) (session.Session, error) {
	status, err := session.ParseStatus(rawStatus)
	if err != nil {
		return session.Session{}, err
	}
	sess, err := s.handoff.Override(ctx, sessionID, status, until, staff)
	if err != nil {
		return session.Session{}, err
	}
	s.logger.Info("session status updated",
		slog.Int64("session_id", sessionID),
		slog.String("status", string(sess.Status)),
		slog.String("owner", sess.CurrentOwner))
	return sess, nil
}

func (s *Service) SetTags(ctx context.Context, sessionID int64, tagIDs []int64) (session.Session, error) {
	return s.sessions.SetTags(ctx, sessionID, tagIDs)
}

// DeleteSessions removes sessions with their messages and profiles.
func (s *Service) DeleteSessions(ctx context.Context, ids []int64) (int64, error) {
	return s.sessions.Delete(ctx, ids)
}

func (s *Service) DeleteMessages(ctx context.Context, sessionID int64, ids []int64) (int64, error) {
	return s.messages.Delete(ctx, sessionID, ids)
}

// AdminHistory lists every session with its latest message, newest activity
// first.
func (s *Service) AdminHistory(ctx context.Context) ([]session.Overview, error) {
	items, err := s.sessions.ListOverview(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return lastActivity(items[i]).After(lastActivity(items[j]))
	})
	return items, nil
}

func lastActivity(o session.Overview) time.Time {
	if o.LastMessage != nil {
		return o.LastMessage.CreatedAt
	}
	return o.CreatedAt
}

// Customers lists sessions matching filter joined with their profiles.
func (s *Service) Customers(ctx context.Context, filter session.ListFilter) ([]Customer, error) {
	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]Customer, 0, len(sessions))
	if len(sessions) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	profiles := map[int64]map[string]string{}
	if s.profiles != nil {
		got, err := s.profiles.GetMany(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load profiles: %w", err)
		}
		for id, p := range got {
			profiles[id] = p.Data
		}
	}
	for _, sess := range sessions {
		data := profiles[sess.ID]
		if data == nil {
			data = map[string]string{}
		}
		out = append(out, Customer{Session: sess, CustomerData: data})
	}
	return out, nil
}

// Dashboard counts sessions and messages per channel.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	sessions, err := s.sessions.CountByChannel(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	msgs, err := s.messages.CountByChannel(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{Sessions: sessions, Messages: msgs}
	for _, c := range sessions {
		d.TotalSessions += c.Total
	}
	for _, c := range msgs {
		d.TotalMessages += c.Total
	}
	if d.Sessions == nil {
		d.Sessions = []session.ChannelCount{}
	}
	if d.Messages == nil {
		d.Messages = []message.ChannelCount{}
	}
	return d, nil
}

// BulkSend sends the same staff message to each session. Failures are
// reported per session and do not stop the batch.
func (s *Service) BulkSend(ctx context.Context, ids []int64, staff, content string, images []string) BulkResult {
	res := BulkResult{Sent: []int64{}}
	for _, id := range ids {
		_, err := s.StaffTurn(ctx, StaffInput{SessionID: id, Staff: staff, Content: content, Images: images}, nil)
		if err != nil {
			if res.Failed == nil {
				res.Failed = map[int64]string{}
			}
			res.Failed[id] = err.Error()
			s.logger.Warn("bulk send failed", slog.Int64("session_id", id), slog.Any("error", err))
			continue
		}
		res.Sent = append(res.Sent, id)
	}
	return res
}

// Session returns one session by id.
func (s *Service) Session(ctx context.Context, id int64) (session.Session, error) {
	return s.sessions.Get(ctx, id)
}
