package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// WithTx runs fn inside a write transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func WithTx(ctx context.Context, sqlDB *sql.DB, fn func(tx *sql.Tx) error) error {
	if sqlDB == nil {
		return fmt.Errorf("sql db is required")
	}
	if fn == nil {
		return fmt.Errorf("transaction func is required")
	}
	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
