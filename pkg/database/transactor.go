package database

import (
	"context"

	"github.com/Gobusters/ectologger"
)

// Transactor runs a unit of work inside one database transaction. Repositories built on
// the same DB pick the transaction up from the context, so their writes commit together.
type Transactor struct {
	db     DB
	logger ectologger.Logger
}

func NewTransactor(db DB, logger ectologger.Logger) *Transactor {
	return &Transactor{db: db, logger: logger}
}

func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, tx, err := t.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (t *Transactor) Atomic() bool { return true }
