package ledger

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Repository is the append-only data access surface for ledger entries.
// There is deliberately no update or delete.
type Repository interface {
	Append(ctx context.Context, entry *Entry) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new ledger repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Append inserts a new ledger entry.
func (r *repository) Append(ctx context.Context, entry *Entry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}
