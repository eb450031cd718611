package store

import (
	"context"

	"github.com/cockroachdb/errors"
)

// mutationLockKey is the Postgres advisory lock taken by every InTx call.
// One key for the whole database gives coarse one-mutation-at-a-time
// semantics across processes.
const mutationLockKey int64 = 0x73797361726368 // "sysarch"

// InTx runs fn inside one transaction. The transaction commits when fn
// returns nil and rolls back on every other exit path, including panics.
//
// On SQLite the transaction begins IMMEDIATE and the pool holds a single
// connection, so fn must do all of its reads through the Records it is given.
// On Postgres a transaction-scoped advisory lock serialises mutations.
func (s *Store) InTx(ctx context.Context, fn func(*Records) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Debugw("Rollback failed", "error", rbErr)
			}
		}
	}()

	if s.dialect == Postgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, mutationLockKey); err != nil {
			return errors.Wrap(err, "acquire mutation lock")
		}
	}

	if err := fn(&Records{q: tx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify(err, "commit tx")
	}
	committed = true
	return nil
}
