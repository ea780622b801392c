package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/cache"
)

// Pause hands the session to staff until now+d. The owner being replaced,
// even the same staff member, becomes the previous owner.
func Pause(s Session, staff string, now time.Time, d time.Duration) Session {
	until := now.Add(d)
	s.PreviousOwner = s.CurrentOwner
	s.CurrentOwner = staff
	s.Status = StatusPaused
	s.PauseUntil = &until
	return s
}

// Resume returns the session to the bot.
func Resume(s Session) Session {
	if s.CurrentOwner != BotOwner {
		s.PreviousOwner = s.CurrentOwner
	}
	s.CurrentOwner = BotOwner
	s.Status = StatusAuto
	s.PauseUntil = nil
	return s
}

// Expired reports whether a paused session has outlived its deadline.
func Expired(s Session, now time.Time) bool {
	return s.Status == StatusPaused && s.PauseUntil != nil && now.After(*s.PauseUntil)
}

// ReplyDecision is the cached answer to "may the bot reply". A false decision
// is only trusted until the pause deadline.
type ReplyDecision struct {
	CanReply bool       `json:"can_reply"`
	Until    *time.Time `json:"until,omitempty"`
}

func decisionFor(s Session) ReplyDecision {
	if s.Status == StatusAuto {
		return ReplyDecision{CanReply: true}
	}
	return ReplyDecision{CanReply: false, Until: s.PauseUntil}
}

// Handoff drives the auto/paused state machine on top of the Store.
type Handoff struct {
	store    *Store
	cache    cache.Store
	pause    time.Duration
	replyTTL time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewHandoff(log *slog.Logger, store *Store, c cache.Store, pause, replyTTL time.Duration) *Handoff {
	if pause <= 0 {
		pause = time.Hour
	}
	if replyTTL <= 0 {
		replyTTL = 300 * time.Second
	}
	return &Handoff{
		store:    store,
		cache:    c,
		pause:    pause,
		replyTTL: replyTTL,
		now:      time.Now,
		logger:   log.With(slog.String("service", "handoff")),
	}
}

// PauseDuration is how long a staff message keeps the bot silent.
func (h *Handoff) PauseDuration() time.Duration { return h.pause }

// OnCustomerMessage reports whether the bot should answer this turn. A valid
// cached decision settles it without touching the store; otherwise the
// session is loaded and an expired pause is reverted to the bot.
func (h *Handoff) OnCustomerMessage(ctx context.Context, id int64) (bool, error) {
	if d, ok := h.cached(ctx, id); ok && h.trusted(d) {
		return d.CanReply, nil
	}
	s, err := h.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if Expired(s, h.now()) {
		s = Resume(s)
		if err := h.store.Save(ctx, s); err != nil {
			return false, fmt.Errorf("resume session: %w", err)
		}
		h.logger.Info("session returned to bot", slog.Int64("session_id", id), slog.String("previous_owner", s.PreviousOwner))
	}
	d := decisionFor(s)
	h.remember(ctx, id, d)
	return d.CanReply, nil
}

// CanAutoReply answers from the cached decision when it is still valid. It
// never mutates the session.
func (h *Handoff) CanAutoReply(ctx context.Context, id int64) bool {
	if d, ok := h.cached(ctx, id); ok && h.trusted(d) {
		return d.CanReply
	}
	s, err := h.store.Get(ctx, id)
	if err != nil {
		h.logger.Warn("reply decision lookup failed", slog.Int64("session_id", id), slog.Any("error", err))
		return false
	}
	if Expired(s, h.now()) {
		return true
	}
	d := decisionFor(s)
	h.remember(ctx, id, d)
	return d.CanReply
}

// trusted reports whether a cached decision still holds. A negative decision
// expires with the pause deadline.
func (h *Handoff) trusted(d ReplyDecision) bool {
	if d.CanReply {
		return true
	}
	return d.Until != nil && !h.now().After(*d.Until)
}

// OnStaffMessage pauses the bot for the configured window and makes staff the owner.
func (h *Handoff) OnStaffMessage(ctx context.Context, id int64, staff string) (Session, error) {
	staff, err := staffLabel(staff)
	if err != nil {
		return Session{}, err
	}
	s, err := h.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	s = Pause(s, staff, h.now(), h.pause)
	if err := h.store.Save(ctx, s); err != nil {
		return Session{}, fmt.Errorf("pause session: %w", err)
	}
	h.remember(ctx, id, decisionFor(s))
	return s, nil
}

// Override sets the status explicitly. Pausing assigns the caller as owner
// until the given time, or for the default window when until is nil.
// Resuming an auto session is a no-op.
func (h *Handoff) Override(ctx context.Context, id int64, status Status, until *time.Time, staff string) (Session, error) {
	s, err := h.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	switch status {
	case StatusAuto:
		if s.Status == StatusAuto {
			return s, nil
		}
		s = Resume(s)
	case StatusPaused:
		staff, err := staffLabel(staff)
		if err != nil {
			return Session{}, err
		}
		s = Pause(s, staff, h.now(), h.pause)
		if until != nil {
			t := *until
			s.PauseUntil = &t
		}
	default:
		return Session{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := h.store.Save(ctx, s); err != nil {
		return Session{}, err
	}
	h.store.Invalidate(ctx, id)
	h.logger.Info("session status overridden",
		slog.Int64("session_id", id),
		slog.String("status", string(s.Status)),
		slog.String("owner", s.CurrentOwner))
	return s, nil
}

func (h *Handoff) cached(ctx context.Context, id int64) (ReplyDecision, bool) {
	var d ReplyDecision
	if h.cache == nil {
		return d, false
	}
	ok, err := h.cache.Get(ctx, replyKey(id), &d)
	if err != nil {
		h.logger.Warn("reply cache read failed", slog.Int64("session_id", id), slog.Any("error", err))
		return d, false
	}
	return d, ok
}

func (h *Handoff) remember(ctx context.Context, id int64, d ReplyDecision) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, replyKey(id), d, h.replyTTL); err != nil {
		h.logger.Warn("reply cache write failed", slog.Int64("session_id", id), slog.Any("error", err))
	}
}

func staffLabel(staff string) (string, error) {
	staff = strings.TrimSpace(staff)
	if staff == "" || staff == BotOwner {
		return "", fmt.Errorf("%w: staff owner required", ErrInvalidSession)
	}
	return staff, nil
}
