package lock

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLock(t *testing.T) (*AdvisoryLock, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPromotionLock(db, "proddb"), mock
}

func expectGetLock(mock sqlmock.Sqlmock, name string, timeout, result int) {
	mock.ExpectQuery("SELECT GET_LOCK").
		WithArgs(name, timeout).
		WillReturnRows(sqlmock.NewRows([]string{"GET_LOCK"}).AddRow(result))
}

func expectReleaseLock(mock sqlmock.Sqlmock, name string, result int) {
	mock.ExpectQuery("SELECT RELEASE_LOCK").
		WithArgs(name).
		WillReturnRows(sqlmock.NewRows([]string{"RELEASE_LOCK"}).AddRow(result))
}

func TestPromotionLockName(t *testing.T) {
	tests := []struct {
		name     string
		database string
		want     string
	}{
		{name: "Plain", database: "proddb", want: "dbpromote:target:proddb"},
		{name: "Dashes and underscores kept", database: "prod-db_2", want: "dbpromote:target:prod-db_2"},
		{name: "Special characters replaced", database: "prod db;drop", want: "dbpromote:target:prod_db_drop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, promotionLockName(tt.database))
		})
	}
}

func TestAcquireAndRelease(t *testing.T) {
	l, mock := newLock(t)

	expectGetLock(mock, "dbpromote:target:proddb", TimeoutShort, 1)
	expectReleaseLock(mock, "dbpromote:target:proddb", 1)

	acquired, err := l.Acquire(context.Background(), TimeoutShort)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	released, err := l.Release(context.Background())
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, l.IsHeld())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_HeldElsewhere(t *testing.T) {
	l, mock := newLock(t)

	expectGetLock(mock, "dbpromote:target:proddb", TimeoutImmediate, 0)

	acquired, err := l.Acquire(context.Background(), TimeoutImmediate)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, l.IsHeld())
}

func TestAcquire_AlreadyHeldIsNoop(t *testing.T) {
	l, mock := newLock(t)

	expectGetLock(mock, "dbpromote:target:proddb", TimeoutShort, 1)

	_, err := l.Acquire(context.Background(), TimeoutShort)
	require.NoError(t, err)

	// No second GET_LOCK expectation: the re-acquire must not hit the
	// database.
	acquired, err := l.Acquire(context.Background(), TimeoutShort)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquire_NullResult(t *testing.T) {
	l, mock := newLock(t)

	mock.ExpectQuery("SELECT GET_LOCK").
		WillReturnRows(sqlmock.NewRows([]string{"GET_LOCK"}).AddRow(nil))

	_, err := l.Acquire(context.Background(), TimeoutShort)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned NULL")
}

func TestRelease_NotHeld(t *testing.T) {
	l, _ := newLock(t)

	released, err := l.Release(context.Background())
	require.NoError(t, err)
	assert.False(t, released)
}

func TestWithLock_RunsAndReleases(t *testing.T) {
	l, mock := newLock(t)

	expectGetLock(mock, "dbpromote:target:proddb", TimeoutShort, 1)
	expectReleaseLock(mock, "dbpromote:target:proddb", 1)

	ran := false
	err := l.WithLock(context.Background(), TimeoutShort, func() error {
		ran = true
		assert.True(t, l.IsHeld())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, l.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithLock_TimeoutError(t *testing.T) {
	l, mock := newLock(t)

	expectGetLock(mock, "dbpromote:target:proddb", TimeoutShort, 0)

	err := l.WithLock(context.Background(), TimeoutShort, func() error {
		t.Fatal("function must not run without the lock")
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestWithLock_ReleasesOnFunctionError(t *testing.T) {
	l, mock := newLock(t)

	expectGetLock(mock, "dbpromote:target:proddb", TimeoutShort, 1)
	expectReleaseLock(mock, "dbpromote:target:proddb", 1)

	wantErr := errors.New("promotion failed")
	err := l.WithLock(context.Background(), TimeoutShort, func() error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, l.IsHeld())
	require.NoError(t, mock.ExpectationsWereMet())
}
