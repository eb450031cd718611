package store

import (
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors returned (wrapped) by Records. Callers test with errors.Is.
var (
	// ErrNotFound is returned when no row has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrForeignKey is returned when a write violates a foreign key, either
	// because a referenced row is missing or because dependents block a delete.
	ErrForeignKey = errors.New("foreign key violation")
	// ErrConstraint is returned for any other CHECK, UNIQUE or NOT NULL violation.
	ErrConstraint = errors.New("constraint violation")
)

// classify maps driver errors onto the sentinels above. The original driver
// error stays in the chain for logs; errors.Is matches the sentinel.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrNotFound, op)
	}
	if sentinel := classifySQLite(err); sentinel != nil {
		return errors.Wrap(errors.Mark(err, sentinel), op)
	}
	if sentinel := classifyPostgres(err); sentinel != nil {
		return errors.Wrap(errors.Mark(err, sentinel), op)
	}
	return errors.Wrap(err, op)
}

func classifyPostgres(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch strings.TrimSpace(pgErr.Code) {
	case "23503":
		return ErrForeignKey // foreign_key_violation
	case "23505", "23514", "23502":
		return ErrConstraint // unique / check / not_null
	}
	return nil
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForeignKey reports whether err is (or wraps) ErrForeignKey.
func IsForeignKey(err error) bool { return errors.Is(err, ErrForeignKey) }

// IsConstraint reports whether err is (or wraps) ErrConstraint.
func IsConstraint(err error) bool { return errors.Is(err, ErrConstraint) }
