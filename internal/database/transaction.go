package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// WithTransaction executes fn within a transaction, committing on success
// or rolling back on error.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error) error {
	tx := db.Session(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin transaction: %w", tx.Error)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WithTransactionResult executes fn within a transaction, returning the
// result on success.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var result T

	tx := db.Session(ctx).Begin()
	if tx.Error != nil {
		return result, fmt.Errorf("begin transaction: %w", tx.Error)
	}

	result, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return result, err
	}

	if err := tx.Commit().Error; err != nil {
		return result, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}
