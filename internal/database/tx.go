package database

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx runs fn inside one atomic unit of work. It commits if fn returns
// nil, otherwise it rolls back; either way no partial state is durably
// observable outside the unit. The *sql.Tx is passed into every store call
// made within fn; there is no shared transaction handle.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after fn error: %v (fn err: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
