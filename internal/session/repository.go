package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/db"
)

const sessionColumns = `id, channel, name, status, current_receiver, previous_receiver, pause_until, alert, url_channel, page_id, created_at`

// PGRepository implements Repository on postgres.
type PGRepository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// GetOrCreate inserts the session or returns the existing one for (channel, name).
// A non-empty page id refreshes the stored one.
func (r *PGRepository) GetOrCreate(ctx context.Context, ch channel.ChannelType, name string, d Defaults) (Session, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO chat_session (channel, name, status, current_receiver, url_channel, page_id)
VALUES ($1, $2, 'auto', $3, $4, $5)
ON CONFLICT (channel, name) DO UPDATE
SET page_id = COALESCE(NULLIF(EXCLUDED.page_id, ''), chat_session.page_id)
RETURNING `+sessionColumns,
		string(ch), name, BotOwner, d.OriginURL, d.PageID)
	s, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("get or create session: %w", err)
	}
	return r.withTags(ctx, s)
}

func (r *PGRepository) Create(ctx context.Context, s Session) (Session, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO chat_session (channel, name, status, current_receiver, previous_receiver, pause_until, url_channel, page_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+sessionColumns,
		string(s.Channel), s.Name, string(s.Status), s.CurrentOwner, s.PreviousOwner, s.PauseUntil, s.OriginURL, s.PageID)
	created, err := scanSession(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Session{}, ErrDuplicate
		}
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	created.Tags = []Tag{}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM chat_session WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if db.IsNoRows(err) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return r.withTags(ctx, s)
}

func (r *PGRepository) Update(ctx context.Context, s Session) error {
	tag, err := r.db.Exec(ctx, `
UPDATE chat_session
SET status = $2, current_receiver = $3, previous_receiver = $4, pause_until = $5,
    alert = $6, url_channel = $7, page_id = $8
WHERE id = $1`,
		s.ID, string(s.Status), s.CurrentOwner, s.PreviousOwner, s.PauseUntil, s.Alert, s.OriginURL, s.PageID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetAlert(ctx context.Context, id int64, alert bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE chat_session SET alert = $2 WHERE id = $1`, id, alert)
	if err != nil {
		return fmt.Errorf("set alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTags replaces the session's tag set. Unknown tag ids are ignored.
func (r *PGRepository) SetTags(ctx context.Context, id int64, tagIDs []int64) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM chat_session_tag WHERE chat_session_id = $1`, id); err != nil {
		return fmt.Errorf("clear session tags: %w", err)
	}
	if len(tagIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
INSERT INTO chat_session_tag (chat_session_id, tag_id)
SELECT $1, t.id FROM tag t WHERE t.id = ANY($2)
ON CONFLICT DO NOTHING`, id, tagIDs)
	if err != nil {
		return fmt.Errorf("set session tags: %w", err)
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM chat_session WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Session, error) {
	var (
		where []string
		args  []any
	)
	if filter.Channel != "" {
		args = append(args, string(filter.Channel))
		where = append(where, fmt.Sprintf("s.channel = $%d", len(args)))
	}
	if filter.TagID > 0 {
		args = append(args, filter.TagID)
		where = append(where, fmt.Sprintf("EXISTS (SELECT 1 FROM chat_session_tag st WHERE st.chat_session_id = s.id AND st.tag_id = $%d)", len(args)))
	}
	query := `SELECT ` + prefixed("s.", sessionColumns) + ` FROM chat_session s`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY s.created_at DESC, s.id DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOverview returns every session with its newest message, most recent activity first.
func (r *PGRepository) ListOverview(ctx context.Context) ([]Overview, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+prefixed("s.", sessionColumns)+`, lm.sender_type, lm.content, lm.created_at
FROM chat_session s
LEFT JOIN LATERAL (
    SELECT m.sender_type, m.content, m.created_at
    FROM message m
    WHERE m.chat_session_id = s.id
    ORDER BY m.created_at DESC, m.id DESC
    LIMIT 1
) lm ON TRUE
ORDER BY COALESCE(lm.created_at, s.created_at) DESC, s.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list session overview: %w", err)
	}
	defer rows.Close()

	var (
		out      []Overview
		sessions []Session
	)
	for rows.Next() {
		var (
			s          Session
			status     string
			ch         string
			senderType *string
			content    *string
			lastAt     *time.Time
		)
		if err := rows.Scan(&s.ID, &ch, &s.Name, &status, &s.CurrentOwner, &s.PreviousOwner, &s.PauseUntil,
			&s.Alert, &s.OriginURL, &s.PageID, &s.CreatedAt, &senderType, &content, &lastAt); err != nil {
			return nil, err
		}
		s.Channel = channel.ChannelType(ch)
		s.Status = Status(status)
		ov := Overview{Session: s}
		if lastAt != nil {
			ov.LastMessage = &LastMessage{SenderType: deref(senderType), Content: deref(content), CreatedAt: *lastAt}
		}
		out = append(out, ov)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachTags(ctx, sessions); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Tags = sessions[i].Tags
	}
	return out, nil
}

func (r *PGRepository) CountByChannel(ctx context.Context) ([]ChannelCount, error) {
	rows, err := r.db.Query(ctx, `SELECT channel, COUNT(*) FROM chat_session GROUP BY channel ORDER BY channel`)
	if err != nil {
		return nil, fmt.Errorf("count sessions by channel: %w", err)
	}
	defer rows.Close()
	var out []ChannelCount
	for rows.Next() {
		var c ChannelCount
		if err := rows.Scan(&c.Channel, &c.Total); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGRepository) withTags(ctx context.Context, s Session) (Session, error) {
	list := []Session{s}
	if err := r.attachTags(ctx, list); err != nil {
		return Session{}, err
	}
	return list[0], nil
}

func (r *PGRepository) attachTags(ctx context.Context, sessions []Session) error {
	if len(sessions) == 0 {
		return nil
	}
	ids := make([]int64, len(sessions))
	index := make(map[int64][]int, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
		index[s.ID] = append(index[s.ID], i)
		sessions[i].Tags = []Tag{}
	}
	rows, err := r.db.Query(ctx, `
SELECT st.chat_session_id, t.id, t.name, t.description, t.color
FROM chat_session_tag st
JOIN tag t ON t.id = st.tag_id
WHERE st.chat_session_id = ANY($1)
ORDER BY t.id`, ids)
	if err != nil {
		return fmt.Errorf("load session tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			sessionID int64
			t         Tag
		)
		if err := rows.Scan(&sessionID, &t.ID, &t.Name, &t.Description, &t.Color); err != nil {
			return err
		}
		for _, i := range index[sessionID] {
			sessions[i].Tags = append(sessions[i].Tags, t)
		}
	}
	return rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s      Session
		ch     string
		status string
	)
	if err := row.Scan(&s.ID, &ch, &s.Name, &status, &s.CurrentOwner, &s.PreviousOwner, &s.PauseUntil,
		&s.Alert, &s.OriginURL, &s.PageID, &s.CreatedAt); err != nil {
		return Session{}, err
	}
	s.Channel = channel.ChannelType(ch)
	s.Status = Status(status)
	return s, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// PGTagRepository implements TagRepository on postgres.
type PGTagRepository struct {
	db db.DBTX
}

func NewTagRepository(conn db.DBTX) *PGTagRepository {
	return &PGTagRepository{db: conn}
}

func (r *PGTagRepository) List(ctx context.Context) ([]Tag, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, description, color FROM tag ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PGTagRepository) Create(ctx context.Context, t Tag) (Tag, error) {
	err := r.db.QueryRow(ctx, `
INSERT INTO tag (name, description, color) VALUES ($1, $2, $3)
RETURNING id, name, description, color`, t.Name, t.Description, t.Color).
		Scan(&t.ID, &t.Name, &t.Description, &t.Color)
	if err != nil {
		return Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return t, nil
}

func (r *PGTagRepository) Update(ctx context.Context, t Tag) (Tag, error) {
	err := r.db.QueryRow(ctx, `
UPDATE tag SET name = $2, description = $3, color = $4 WHERE id = $1
RETURNING id, name, description, color`, t.ID, t.Name, t.Description, t.Color).
		Scan(&t.ID, &t.Name, &t.Description, &t.Color)
	if err != nil {
		if db.IsNoRows(err) {
			return Tag{}, ErrTagNotFound
		}
		return Tag{}, fmt.Errorf("update tag: %w", err)
	}
	return t, nil
}

func (r *PGTagRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tag WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTagNotFound
	}
	return nil
}
