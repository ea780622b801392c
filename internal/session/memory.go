package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// MemoryRepository is an in-process Repository used by tests.
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]Session
	gets     int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: map[int64]Session{}}
}

func (r *MemoryRepository) GetOrCreate(_ context.Context, ch channel.ChannelType, name string, d Defaults) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.Channel == ch && s.Name == name {
			if d.PageID != "" {
				s.PageID = d.PageID
				r.sessions[id] = s
			}
			return s, nil
		}
	}
	r.nextID++
	s := Session{
		ID: r.nextID, Channel: ch, Name: name, Status: StatusAuto, CurrentOwner: BotOwner,
		OriginURL: d.OriginURL, PageID: d.PageID, Tags: []Tag{}, CreatedAt: time.Now(),
	}
	r.sessions[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) Create(_ context.Context, s Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.Channel == s.Channel && existing.Name == s.Name {
			return Session{}, ErrDuplicate
		}
	}
	// A preset id is kept so fixtures can pin ids.
	if s.ID == 0 {
		r.nextID++
		s.ID = r.nextID
	} else if s.ID > r.nextID {
		r.nextID = s.ID
	}
	s.Tags = []Tag{}
	s.CreatedAt = time.Now()
	r.sessions[s.ID] = s
	return s, nil
}

func (r *MemoryRepository) Get(_ context.Context, id int64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) Update(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepository) SetAlert(_ context.Context, id int64, alert bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Alert = alert
	r.sessions[id] = s
	return nil
}

func (r *MemoryRepository) SetTags(_ context.Context, id int64, tagIDs []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Tags = []Tag{}
	for _, t := range tagIDs {
		s.Tags = append(s.Tags, Tag{ID: t})
	}
	r.sessions[id] = s
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.sessions[id]; ok {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) List(_ context.Context, filter ListFilter) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if filter.Channel != "" && s.Channel != filter.Channel {
			continue
		}
		if filter.TagID > 0 && !hasTag(s, filter.TagID) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryRepository) ListOverview(ctx context.Context) ([]Overview, error) {
	list, _ := r.List(ctx, ListFilter{})
	out := make([]Overview, 0, len(list))
	for _, s := range list {
		out = append(out, Overview{Session: s})
	}
	return out, nil
}

func (r *MemoryRepository) CountByChannel(context.Context) ([]ChannelCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int64{}
	for _, s := range r.sessions {
		counts[string(s.Channel)]++
	}
	var out []ChannelCount
	for ch, n := range counts {
		out = append(out, ChannelCount{Channel: ch, Total: n})
	}
	return out, nil
}

// Gets counts Get calls.
func (r *MemoryRepository) Gets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gets
}

// MemoryTagRepository is an in-process TagRepository used by tests.
type MemoryTagRepository struct {
	mu     sync.Mutex
	nextID int64
	tags   []Tag
}

func NewMemoryTagRepository() *MemoryTagRepository {
	return &MemoryTagRepository{}
}

func (r *MemoryTagRepository) List(context.Context) ([]Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tag(nil), r.tags...), nil
}

func (r *MemoryTagRepository) Create(_ context.Context, t Tag) (Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	r.tags = append(r.tags, t)
	return t, nil
}

func (r *MemoryTagRepository) Update(_ context.Context, t Tag) (Tag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tags {
		if r.tags[i].ID == t.ID {
			r.tags[i] = t
			return t, nil
		}
	}
	return Tag{}, ErrTagNotFound
}

func (r *MemoryTagRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tags {
		if r.tags[i].ID == id {
			r.tags = append(r.tags[:i], r.tags[i+1:]...)
			return nil
		}
	}
	return ErrTagNotFound
}

func hasTag(s Session, id int64) bool {
	for _, t := range s.Tags {
		if t.ID == id {
			return true
		}
	}
	return false
}
