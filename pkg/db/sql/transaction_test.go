package sql

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	apperrors "concierge/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`DELETE FROM kv`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB) int {
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM kv`).Scan(&n))
	return n
}

func TestExecuteTransaction_Commits(t *testing.T) {
	db := openDB(t)
	tm := NewTransactionManager(db)

	err := tm.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		_, err := Conn(ctx, db).ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestExecuteTransaction_RollsBackAndKeepsAppError(t *testing.T) {
	db := openDB(t)
	tm := NewTransactionManager(db)

	err := tm.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		if _, err := Conn(ctx, db).ExecContext(ctx, `INSERT INTO kv VALUES ('a', '1')`); err != nil {
			return err
		}
		return apperrors.Superseded("lost")
	})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSuperseded))
	assert.Equal(t, 0, count(t, db))
}

func TestExecuteTransaction_NestedReusesOuter(t *testing.T) {
	db := openDB(t)
	tm := NewTransactionManager(db)

	err := tm.ExecuteTransaction(context.Background(), func(ctx context.Context) error {
		return tm.ExecuteTransaction(ctx, func(inner context.Context) error {
			_, err := Conn(inner, db).ExecContext(inner, `INSERT INTO kv VALUES ('b', '2')`)
			if err != nil {
				return err
			}
			return errors.New("boom")
		})
	})
	require.Error(t, err)
	assert.Equal(t, 0, count(t, db))
}
