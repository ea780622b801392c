package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/common"
	"github.com/omnidesk/omnidesk/internal/message"
	"github.com/omnidesk/omnidesk/internal/profile"
	"github.com/omnidesk/omnidesk/internal/rag"
	"github.com/omnidesk/omnidesk/internal/realtime"
	"github.com/omnidesk/omnidesk/internal/session"
)

const (
	historyTurns       = 10
	defaultTaskTimeout = 2 * time.Minute
)

var ErrEmptyMessage = errors.New("message is empty")

// Responder produces the bot reply for a customer turn.
type Responder interface {
	Respond(ctx context.Context, req rag.Request) string
}

// Profiles reads and refreshes customer profiles.
type Profiles interface {
	Get(ctx context.Context, sessionID int64) (map[string]string, error)
	GetMany(ctx context.Context, sessionIDs []int64) (map[int64]profile.Profile, error)
	Refresh(ctx context.Context, sessionID int64) (*profile.Update, error)
}

// Fanout pushes frames to connected sockets.
type Fanout interface {
	SendToCustomer(sessionID int64, v any)
	BroadcastToStaff(v any, except *realtime.Conn)
}

// Attachments turns inline uploads into stored references.
type Attachments interface {
	SaveAll(ctx context.Context, refs []string) []string
}

// Deliverer pushes replies to external platforms. Failures are handled by
// the implementation.
type Deliverer interface {
	Deliver(ctx context.Context, msg channel.Outbound)
}

type Deps struct {
	Sessions    *session.Store
	Handoff     *session.Handoff
	Messages    *message.Service
	Responder   Responder
	Profiles    Profiles
	Fanout      Fanout
	Deliverer   Deliverer
	Attachments Attachments
	BotLabel    string
	OriginURL   string
	TaskTimeout time.Duration
}

// Service runs conversation turns.
type Service struct {
	sessions    *session.Store
	handoff     *session.Handoff
	messages    *message.Service
	responder   Responder
	profiles    Profiles
	fanout      Fanout
	deliverer   Deliverer
	attachments Attachments
	botLabel    string
	originURL   string
	taskTimeout time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewService(log *slog.Logger, deps Deps) *Service {
	label := deps.BotLabel
	if label == "" {
		label = session.BotOwner
	}
	timeout := deps.TaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	return &Service{
		sessions:    deps.Sessions,
		handoff:     deps.Handoff,
		messages:    deps.Messages,
		responder:   deps.Responder,
		profiles:    deps.Profiles,
		fanout:      deps.Fanout,
		deliverer:   deps.Deliverer,
		attachments: deps.Attachments,
		botLabel:    label,
		originURL:   deps.OriginURL,
		taskTimeout: timeout,
		logger:      log.With(slog.String("service", "conversation")),
	}
}

// HandleInbound runs a customer turn for a normalized message. Platform
// messages resolve their session by thread name; web frames carry the id.
func (s *Service) HandleInbound(ctx context.Context, in channel.Inbound) error {
	sessionID := in.SessionID
	if in.Channel != channel.Web {
		sess, err := s.sessions.GetOrCreate(ctx, in.Channel, in.ThreadName, session.Defaults{PageID: in.PageID})
		if err != nil {
			return fmt.Errorf("resolve session: %w", err)
		}
		sessionID = sess.ID
	}
	_, err := s.CustomerTurn(ctx, sessionID, in.Text, in.Attachments)
	return err
}

// CustomerTurn persists the customer message, applies the handoff decision
// and, when the bot owns the session, answers. Frames are fanned out as they
// are produced and returned in order.
func (s *Service) CustomerTurn(ctx context.Context, sessionID int64, text string, images []string) ([]Frame, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return nil, ErrEmptyMessage
	}
	msg, err := s.messages.Persist(ctx, message.PersistInput{
		SessionID:   sessionID,
		SenderType:  message.SenderCustomer,
		Content:     text,
		Attachments: s.storeAttachments(ctx, images),
	})
	if err != nil {
		return nil, err
	}
	canReply, err := s.handoff.OnCustomerMessage(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	frames := []Frame{newFrame(msg, sess)}
	s.publish(frames[0], nil)

	if canReply {
		reply, err := s.botReply(ctx, sess, msg)
		if err != nil {
			s.logger.Error("persist bot reply failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		} else {
			frames = append(frames, reply)
			s.deliver(ctx, sess, reply.Content, nil)
		}
	}

	s.Go(ctx, "extract_profile", func(ctx context.Context) {
		s.refreshProfile(ctx, sessionID)
	})
	return frames, nil
}

// StaffTurn records a staff message, pauses the bot and forwards the message
// to the customer. from is the sending console, which is not echoed.
func (s *Service) StaffTurn(ctx context.Context, in StaffInput, from *realtime.Conn) (Frame, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Images) == 0 {
		return Frame{}, ErrEmptyMessage
	}
	sess, err := s.handoff.OnStaffMessage(ctx, in.SessionID, in.Staff)
	if err != nil {
		return Frame{}, err
	}
	msg, err := s.messages.Persist(ctx, message.PersistInput{
		SessionID:   in.SessionID,
		SenderType:  message.SenderStaff,
		SenderName:  sess.CurrentOwner,
		Content:     content,
		Attachments: s.storeAttachments(ctx, in.Images),
	})
	if err != nil {
		return Frame{}, err
	}
	frame := newFrame(msg, sess)
	s.publish(frame, from)
	s.deliver(ctx, sess, content, in.Images)
	return frame, nil
}

// storeAttachments keeps encoded payloads out of message rows. Inline data
// URLs are dropped when no store is configured.
func (s *Service) storeAttachments(ctx context.Context, refs []string) []string {
	if s.attachments != nil {
		return s.attachments.SaveAll(ctx, refs)
	}
	var out []string
	for _, ref := range refs {
		if common.IsDataURL(ref) {
			s.logger.Warn("inline attachment dropped")
			continue
		}
		out = append(out, ref)
	}
	return out
}

func (s *Service) botReply(ctx context.Context, sess session.Session, customer message.Message) (Frame, error) {
	var text string
	if customer.Content == channel.UnsupportedContentText {
		text = channel.UnsupportedContentText
	} else {
		text = s.responder.Respond(ctx, rag.Request{
			SessionID: sess.ID,
			Question:  customer.Content,
			Profile:   s.profile(ctx, sess.ID),
			History:   s.history(ctx, sess.ID, customer.ID),
		})
	}
	msg, err := s.messages.Persist(ctx, message.PersistInput{
		SessionID:  sess.ID,
		SenderType: message.SenderBot,
		SenderName: s.botLabel,
		Content:    text,
	})
	if err != nil {
		return Frame{}, err
	}
	frame := newFrame(msg, sess)
	s.publish(frame, nil)
	return frame, nil
}

// history returns recent messages before the current one.
func (s *Service) history(ctx context.Context, sessionID, currentID int64) []message.Message {
	msgs, err := s.messages.Latest(ctx, sessionID, historyTurns+1)
	if err != nil {
		s.logger.Warn("load history failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		return nil
	}
	out := make([]message.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID != currentID {
			out = append(out, m)
		}
	}
	return message.Tail(out, historyTurns)
}

func (s *Service) profile(ctx context.Context, sessionID int64) map[string]string {
	if s.profiles == nil {
		return nil
	}
	data, err := s.profiles.Get(ctx, sessionID)
	if err != nil {
		s.logger.Warn("load profile failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		return nil
	}
	return data
}

func (s *Service) refreshProfile(ctx context.Context, sessionID int64) {
	if s.profiles == nil {
		return
	}
	update, err := s.profiles.Refresh(ctx, sessionID)
	if err != nil {
		s.logger.Warn("profile extraction failed", slog.Int64("session_id", sessionID), slog.Any("error", err))
		return
	}
	if update == nil {
		return
	}
	s.fanout.BroadcastToStaff(ProfileFrame{
		SessionID:    update.SessionID,
		CustomerData: update.Data,
		Type:         FrameTypeProfile,
	}, nil)
}

func (s *Service) publish(f Frame, from *realtime.Conn) {
	if s.fanout == nil {
		return
	}
	s.fanout.SendToCustomer(f.SessionID, f)
	s.fanout.BroadcastToStaff(f, from)
}

// deliver pushes text to the session's platform in the background. Web
// sessions are served by the socket fan-out alone.
func (s *Service) deliver(ctx context.Context, sess session.Session, text string, images []string) {
	if sess.Channel == channel.Web || s.deliverer == nil {
		return
	}
	out := channel.Outbound{
		Channel:   sess.Channel,
		PageID:    sess.PageID,
		Recipient: sess.Recipient(),
		Text:      text,
		Images:    images,
	}
	if out.IsEmpty() {
		return
	}
	s.Go(ctx, "deliver", func(ctx context.Context) {
		s.deliverer.Deliver(ctx, out)
	})
}

// Go runs fn detached from the caller's cancellation with its own timeout.
// Panics and failures stay inside the task.
func (s *Service) Go(parent context.Context, name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background task panic",
					slog.String("task", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.taskTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until background tasks finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
