package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-portal/pkg/database"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	raw, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "tx.db"), MaxOpenConns: 2}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	_, err = raw.Exec("CREATE TABLE counters (name TEXT PRIMARY KEY, n INTEGER NOT NULL)")
	require.NoError(t, err)

	db := NewDB(raw.DB, zap.NewNop())
	db.backoff = time.Millisecond
	return db
}

func count(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM counters").Scan(&n))
	return n
}

func TestWithTransaction_CommitsAndNests(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		require.NotNil(t, outer)

		if _, err := Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO counters VALUES ('a', 1)"); err != nil {
			return err
		}
		return db.WithTransaction(ctx, func(ctx context.Context) error {
			assert.Same(t, outer, TxFromContext(ctx), "nested call joins the outer transaction")
			_, err := Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO counters VALUES ('b', 1)")
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, db))
	assert.Nil(t, TxFromContext(ctx))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	boom := errors.New("boom")

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		_, err := Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO counters VALUES ('a', 1)")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, count(t, db))
}

func TestWithTransaction_RetriesBusy(t *testing.T) {
	db := newTestDB(t)
	calls := 0

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		_, err := Conn(ctx, db.DB).ExecContext(ctx, "INSERT INTO counters VALUES ('a', 1)")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, count(t, db))
}

func TestWithTransaction_GivesUpAfterAttempts(t *testing.T) {
	db := newTestDB(t)
	calls := 0

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrLocked}
	})
	assert.True(t, database.IsBusy(err))
	assert.Equal(t, db.attempts, calls)
}

func TestWithTransaction_NoRetryOnOrdinaryError(t *testing.T) {
	db := newTestDB(t)
	calls := 0

	err := db.WithTransaction(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("constraint")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
