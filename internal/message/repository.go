package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/omnidesk/omnidesk/internal/db"
)

const messageColumns = `id, chat_session_id, sender_type, sender_name, content, image, created_at`

// PGRepository implements Repository on postgres.
type PGRepository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

func (r *PGRepository) Create(ctx context.Context, input PersistInput) (Message, error) {
	images, err := json.Marshal(nonNilStrings(input.Attachments))
	if err != nil {
		return Message{}, fmt.Errorf("encode attachments: %w", err)
	}
	row := r.db.QueryRow(ctx, `
INSERT INTO message (chat_session_id, sender_type, sender_name, content, image)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+messageColumns,
		input.SessionID, string(input.SenderType), input.SenderName, input.Content, images)
	return scanMessage(row)
}

func (r *PGRepository) ListLatest(ctx context.Context, sessionID int64, limit int) ([]Message, error) {
	return r.ListPage(ctx, sessionID, 0, limit)
}

func (r *PGRepository) ListPage(ctx context.Context, sessionID int64, offset, limit int) ([]Message, error) {
	rows, err := r.db.Query(ctx, `
SELECT `+messageColumns+`
FROM message
WHERE chat_session_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (r *PGRepository) Delete(ctx context.Context, sessionID int64, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM message WHERE chat_session_id = $1 AND id = ANY($2)`, sessionID, ids)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) CountByChannel(ctx context.Context) ([]ChannelCount, error) {
	rows, err := r.db.Query(ctx, `
SELECT s.channel, COUNT(m.id)
FROM chat_session s
LEFT JOIN message m ON m.chat_session_id = s.id
GROUP BY s.channel
ORDER BY s.channel`)
	if err != nil {
		return nil, fmt.Errorf("count messages by channel: %w", err)
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

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m      Message
		sender string
		images []byte
	)
	if err := row.Scan(&m.ID, &m.SessionID, &sender, &m.SenderName, &m.Content, &images, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	m.SenderType = SenderType(sender)
	if len(images) > 0 {
		if err := json.Unmarshal(images, &m.Attachments); err != nil {
			return Message{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	m.Attachments = nonNilStrings(m.Attachments)
	return m, nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
