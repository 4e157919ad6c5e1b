package storage

import (
	"context"
	"fmt"
)

// InTx runs fn with a Querier bound to a single transaction, committing
// on nil return and rolling back otherwise. Ingestion uses this to make
// persist-and-enqueue atomic per request.
func (db *DB) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(New(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
