package message

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository used by tests.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(_ context.Context, in PersistInput) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m := Message{
		ID:          r.nextID,
		SessionID:   in.SessionID,
		SenderType:  in.SenderType,
		SenderName:  in.SenderName,
		Content:     in.Content,
		Attachments: nonNilStrings(in.Attachments),
		CreatedAt:   time.Unix(r.nextID, 0),
	}
	r.rows = append(r.rows, m)
	return m, nil
}

func (r *MemoryRepository) ListLatest(ctx context.Context, sessionID int64, limit int) ([]Message, error) {
	return r.ListPage(ctx, sessionID, 0, limit)
}

func (r *MemoryRepository) ListPage(_ context.Context, sessionID int64, offset, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Message
	for _, m := range r.rows {
		if m.SessionID == sessionID {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	page := append([]Message(nil), all[offset:end]...)
	reverse(page)
	return page, nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID int64, ids []int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := map[int64]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	var kept []Message
	var n int64
	for _, m := range r.rows {
		if m.SessionID == sessionID && drop[m.ID] {
			n++
			continue
		}
		kept = append(kept, m)
	}
	r.rows = kept
	return n, nil
}

func (r *MemoryRepository) CountByChannel(context.Context) ([]ChannelCount, error) {
	return nil, nil
}
