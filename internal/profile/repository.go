package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/omnidesk/omnidesk/internal/db"
)

// PGRepository implements Repository on the customer_info table.
type PGRepository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

func (r *PGRepository) Get(ctx context.Context, sessionID int64) (Profile, bool, error) {
	var (
		p   Profile
		raw []byte
	)
	err := r.db.QueryRow(ctx, `
SELECT chat_session_id, customer_data, created_at, updated_at
FROM customer_info WHERE chat_session_id = $1`, sessionID).
		Scan(&p.SessionID, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Profile{}, false, nil
		}
		return Profile{}, false, fmt.Errorf("get profile: %w", err)
	}
	if p.Data, err = decodeData(raw); err != nil {
		return Profile{}, false, err
	}
	return p, true, nil
}

func (r *PGRepository) GetMany(ctx context.Context, sessionIDs []int64) (map[int64]Profile, error) {
	rows, err := r.db.Query(ctx, `
SELECT chat_session_id, customer_data, created_at, updated_at
FROM customer_info WHERE chat_session_id = ANY($1)`, sessionIDs)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]Profile, len(sessionIDs))
	for rows.Next() {
		var (
			p   Profile
			raw []byte
		)
		if err := rows.Scan(&p.SessionID, &raw, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Data, err = decodeData(raw); err != nil {
			return nil, err
		}
		out[p.SessionID] = p
	}
	return out, rows.Err()
}

func (r *PGRepository) Upsert(ctx context.Context, sessionID int64, data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
INSERT INTO customer_info (chat_session_id, customer_data)
VALUES ($1, $2)
ON CONFLICT (chat_session_id) DO UPDATE
SET customer_data = EXCLUDED.customer_data, updated_at = now()`, sessionID, raw)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// customer_data may hold non-string JSON written by older tooling.
func decodeData(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err != nil {
		return nil, fmt.Errorf("decode customer data: %w", err)
	}
	return Clean(loose), nil
}

// PGFieldRepository implements FieldRepository on the field_config table.
type PGFieldRepository struct {
	db db.DBTX
}

func NewFieldRepository(conn db.DBTX) *PGFieldRepository {
	return &PGFieldRepository{db: conn}
}

func (r *PGFieldRepository) List(ctx context.Context) ([]FieldConfig, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, excel_column_name, is_required, excel_column_letter
FROM field_config ORDER BY length(excel_column_letter), excel_column_letter, id`)
	if err != nil {
		return nil, fmt.Errorf("list field configs: %w", err)
	}
	defer rows.Close()
	var out []FieldConfig
	for rows.Next() {
		var f FieldConfig
		if err := rows.Scan(&f.ID, &f.FieldName, &f.Required, &f.Column); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *PGFieldRepository) Create(ctx context.Context, f FieldConfig) (FieldConfig, error) {
	err := r.db.QueryRow(ctx, `
INSERT INTO field_config (excel_column_name, is_required, excel_column_letter)
VALUES ($1, $2, $3)
RETURNING id`, f.FieldName, f.Required, f.Column).Scan(&f.ID)
	if err != nil {
		return FieldConfig{}, fmt.Errorf("create field config: %w", err)
	}
	return f, nil
}

func (r *PGFieldRepository) Update(ctx context.Context, f FieldConfig) (FieldConfig, error) {
	tag, err := r.db.Exec(ctx, `
UPDATE field_config SET excel_column_name = $2, is_required = $3, excel_column_letter = $4
WHERE id = $1`, f.ID, f.FieldName, f.Required, f.Column)
	if err != nil {
		return FieldConfig{}, fmt.Errorf("update field config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return FieldConfig{}, ErrFieldNotFound
	}
	return f, nil
}

func (r *PGFieldRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM field_config WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete field config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFieldNotFound
	}
	return nil
}
