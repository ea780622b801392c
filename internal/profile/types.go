// Package profile extracts customer details from conversations and merges
// them into a per-session profile.
package profile

import (
	"context"
	"errors"
	"time"
)

var (
	ErrFieldNotFound = errors.New("field config not found")
	ErrInvalidField  = errors.New("invalid field config")
)

// FieldConfig is one collectable customer field. Column is the spreadsheet
// column letter and defines the field order.
type FieldConfig struct {
	ID        int64  `json:"id"`
	FieldName string `json:"excel_column_name" validate:"required"`
	Required  bool   `json:"is_required"`
	Column    string `json:"excel_column_letter" validate:"required,alpha,max=3"`
}

// Profile is the merged customer data of one session.
type Profile struct {
	SessionID int64             `json:"chat_session_id"`
	Data      map[string]string `json:"customer_data"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Update reports newly learned customer data.
type Update struct {
	SessionID int64             `json:"chat_session_id"`
	Data      map[string]string `json:"customer_data"`
	Created   bool              `json:"created"`
}

// Repository stores profiles, one per session.
type Repository interface {
	Get(ctx context.Context, sessionID int64) (Profile, bool, error)
	GetMany(ctx context.Context, sessionIDs []int64) (map[int64]Profile, error)
	Upsert(ctx context.Context, sessionID int64, data map[string]string) error
}

// FieldRepository stores field definitions.
type FieldRepository interface {
	List(ctx context.Context) ([]FieldConfig, error)
	Create(ctx context.Context, f FieldConfig) (FieldConfig, error)
	Update(ctx context.Context, f FieldConfig) (FieldConfig, error)
	Delete(ctx context.Context, id int64) error
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
