//go:build cgo

package store

import (
	"github.com/cockroachdb/errors"
	"github.com/mattn/go-sqlite3"
)

const sqliteDriverName = "sqlite3"

// sqliteDSN opens write transactions with BEGIN IMMEDIATE so a
// validate-then-write unit holds the write lock from its first read.
func sqliteDSN(path string) string {
	return path + "?_txlock=immediate"
}

func classifySQLite(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return nil
	}
	switch {
	case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return ErrForeignKey
	case se.Code == sqlite3.ErrConstraint:
		return ErrConstraint
	}
	return nil
}
