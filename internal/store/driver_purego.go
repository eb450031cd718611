//go:build !cgo

package store

import (
	"strings"

	"github.com/cockroachdb/errors"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const sqliteDriverName = "sqlite"

// sqliteDSN opens write transactions with BEGIN IMMEDIATE so a
// validate-then-write unit holds the write lock from its first read.
func sqliteDSN(path string) string {
	return path + "?_txlock=immediate"
}

func classifySQLite(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return nil
	}
	code := se.Code()
	switch {
	case code == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
		return ErrForeignKey
	case code&0xff == sqlite3lib.SQLITE_CONSTRAINT:
		if strings.Contains(se.Error(), "FOREIGN KEY") {
			return ErrForeignKey
		}
		return ErrConstraint
	}
	return nil
}
