package migrations

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func expectPreamble(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WithArgs(advisoryLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectApplied(mock sqlmock.Sqlmock, name string, applied bool) {
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM schema_migrations WHERE name = \$1\)`).
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(applied))
}

func TestApply_runsPendingFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectPreamble(mock)
	expectApplied(mock, "0001_init.sql", true)
	expectApplied(mock, "0002_participants.sql", false)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS participants`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations \(name\) VALUES \(\$1\)`).
		WithArgs("0002_participants.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectApplied(mock, "0003_mailings.sql", true)
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(advisoryLockID).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Apply(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_stopsOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectPreamble(mock)
	expectApplied(mock, "0001_init.sql", false)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).WillReturnError(errors.New("syntax error"))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(advisoryLockID).WillReturnResult(sqlmock.NewResult(0, 0))

	err = Apply(context.Background(), db)
	require.ErrorContains(t, err, "exec migration 0001_init.sql")
	require.NoError(t, mock.ExpectationsWereMet())
}
