package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnidesk/omnidesk/internal/cache"
	"github.com/omnidesk/omnidesk/internal/channel"
)

func sessionKey(id int64) string { return fmt.Sprintf("session:%d", id) }

func nameKey(ch channel.ChannelType, name string) string {
	return fmt.Sprintf("session_by_name:%s:%s", ch, name)
}

func replyKey(id int64) string { return fmt.Sprintf("can_reply:%d", id) }

// Store fronts the durable repository with a short-lived snapshot cache.
// Writes go to the repository first and then refresh the snapshot; any cache
// failure degrades to repository reads.
type Store struct {
	repo   Repository
	cache  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewStore(log *slog.Logger, repo Repository, c cache.Store, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Store{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: log.With(slog.String("service", "session_store")),
	}
}

// Repository exposes the durable store for listing queries that bypass the cache.
func (s *Store) Repository() Repository { return s.repo }

// GetOrCreate resolves the session for a channel thread, creating it on first contact.
func (s *Store) GetOrCreate(ctx context.Context, ch channel.ChannelType, name string, d Defaults) (Session, error) {
	var id int64
	if ok := s.cacheGet(ctx, nameKey(ch, name), &id); ok && id > 0 {
		if sess, ok := s.cached(ctx, id); ok && (d.PageID == "" || d.PageID == sess.PageID) {
			return sess, nil
		}
	}
	sess, err := s.repo.GetOrCreate(ctx, ch, name, d)
	if err != nil {
		return Session{}, err
	}
	s.remember(ctx, sess)
	return sess, nil
}

// Create inserts a new session, filling the auto-mode defaults.
func (s *Store) Create(ctx context.Context, sess Session) (Session, error) {
	if sess.Status == "" {
		sess.Status = StatusAuto
	}
	if sess.Status == StatusAuto && sess.CurrentOwner == "" {
		sess.CurrentOwner = BotOwner
	}
	if err := sess.Validate(); err != nil {
		return Session{}, err
	}
	created, err := s.repo.Create(ctx, sess)
	if err != nil {
		return Session{}, err
	}
	s.remember(ctx, created)
	return created, nil
}

func (s *Store) Get(ctx context.Context, id int64) (Session, error) {
	if sess, ok := s.cached(ctx, id); ok {
		return sess, nil
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	s.remember(ctx, sess)
	return sess, nil
}

// Save persists the handoff fields and refreshes the snapshot.
func (s *Store) Save(ctx context.Context, sess Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, sess); err != nil {
		return err
	}
	s.remember(ctx, sess)
	return nil
}

func (s *Store) SetAlert(ctx context.Context, id int64, alert bool) error {
	if err := s.repo.SetAlert(ctx, id, alert); err != nil {
		return err
	}
	s.Invalidate(ctx, id)
	return nil
}

func (s *Store) SetTags(ctx context.Context, id int64, tagIDs []int64) (Session, error) {
	if err := s.repo.SetTags(ctx, id, tagIDs); err != nil {
		return Session{}, err
	}
	s.Invalidate(ctx, id)
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, ids []int64) (int64, error) {
	n, err := s.repo.Delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.Invalidate(ctx, id)
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, filter ListFilter) ([]Session, error) {
	return s.repo.List(ctx, filter)
}

func (s *Store) ListOverview(ctx context.Context) ([]Overview, error) {
	return s.repo.ListOverview(ctx)
}

func (s *Store) CountByChannel(ctx context.Context) ([]ChannelCount, error) {
	return s.repo.CountByChannel(ctx)
}

// Invalidate drops the snapshot and the cached reply decision.
func (s *Store) Invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, sessionKey(id), replyKey(id)); err != nil {
		s.logger.Warn("invalidate session cache failed", slog.Int64("session_id", id), slog.Any("error", err))
	}
}

func (s *Store) cached(ctx context.Context, id int64) (Session, bool) {
	var sess Session
	if !s.cacheGet(ctx, sessionKey(id), &sess) {
		return Session{}, false
	}
	return sess, sess.ID == id
}

func (s *Store) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("session cache read failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return ok
}

func (s *Store) remember(ctx context.Context, sess Session) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, sessionKey(sess.ID), sess, s.ttl); err != nil {
		s.logger.Warn("session cache write failed", slog.Int64("session_id", sess.ID), slog.Any("error", err))
		return
	}
	if err := s.cache.Set(ctx, nameKey(sess.Channel, sess.Name), sess.ID, s.ttl); err != nil {
		s.logger.Warn("session name index write failed", slog.Int64("session_id", sess.ID), slog.Any("error", err))
	}
}
