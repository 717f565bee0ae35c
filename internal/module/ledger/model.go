// Package ledger provides the durable, append-only spend audit trail.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Action types recorded against the ledger.
const (
	ActionImageGeneration = "IMAGE_GEN"
	ActionVideoGeneration = "VIDEO_GEN"
)

// Entry is one immutable record of a billable action. Entries are written
// only after the corresponding provider call has succeeded and are never
// updated or deleted; corrections are additive compensating entries.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  string    `gorm:"index;not null" json:"project_id"`
	UserID     string    `gorm:"index;not null" json:"user_id"`
	ActionType string    `gorm:"not null" json:"action_type"`
	ModelID    string    `gorm:"not null" json:"model_id"`
	Quantity   int       `gorm:"not null;default:1" json:"quantity"`
	Amount     float64   `gorm:"not null" json:"amount"`
	Currency   string    `gorm:"not null;default:'USD'" json:"currency"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName sets the ledger table name.
func (Entry) TableName() string {
	return "usage_ledger"
}
