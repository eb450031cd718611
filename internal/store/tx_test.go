package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/sysarch/internal/model"
)

func newMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, dialect: dialect, log: zap.NewNop().Sugar()}, mock
}

func TestInTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO parts (name, file_location) VALUES (?, ?) RETURNING id")).
		WithArgs("Bolt", "bolt.prt").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	var id int64
	err := s.InTx(context.Background(), func(r *Records) error {
		var err error
		id, err = r.InsertPart(context.Background(), model.Part{Name: "Bolt", FileLocation: "bolt.prt"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("validation failed")
	err := s.InTx(context.Background(), func(r *Records) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = s.InTx(context.Background(), func(r *Records) error { panic("boom") })
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_BeginFailure(t *testing.T) {
	s, mock := newMockStore(t, SQLite)

	mock.ExpectBegin().WillReturnError(errors.New("disk I/O error"))

	called := false
	err := s.InTx(context.Background(), func(r *Records) error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_PostgresTakesAdvisoryLock(t *testing.T) {
	s, mock := newMockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(mutationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO features (name, part_id) VALUES ($1, $2) RETURNING id")).
		WithArgs("Axis", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(r *Records) error {
		_, err := r.InsertFeature(context.Background(), model.Feature{Name: "Axis", PartID: 3})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify_PostgresErrors(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"23503", ErrForeignKey},
		{"23505", ErrConstraint},
		{"23514", ErrConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s, mock := newMockStore(t, Postgres)
			mock.ExpectQuery("INSERT INTO features").
				WillReturnError(&pgconn.PgError{Code: tt.code, Message: "violation"})

			_, err := s.Records().InsertFeature(context.Background(), model.Feature{Name: "Axis", PartID: 3})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestClassify_PassesThroughUnknownErrors(t *testing.T) {
	s, mock := newMockStore(t, SQLite)
	mock.ExpectQuery("SELECT id, name, file_location FROM parts").
		WillReturnError(errors.New("connection reset"))

	_, err := s.Records().ListParts(context.Background())
	require.Error(t, err)
	assert.False(t, IsForeignKey(err))
	assert.False(t, IsConstraint(err))
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "list parts")
}

func TestDelete_PostgresRebind(t *testing.T) {
	s, mock := newMockStore(t, Postgres)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM connectors WHERE id = $1")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Records().Delete(context.Background(), KindConnector, 4)
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
