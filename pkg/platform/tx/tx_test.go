package tx

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`CREATE TABLE items (name TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	return db
}

func count(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func insert(ctx context.Context, db *sql.DB, name string) error {
	_, err := Use(ctx, db).ExecContext(ctx, `INSERT INTO items (name) VALUES (?)`, name)
	return err
}

func TestRunCommits(t *testing.T) {
	db := openDB(t)
	err := Run(context.Background(), db, func(ctx context.Context) error {
		_, ok := From(ctx)
		assert.True(t, ok)
		if err := insert(ctx, db, "a"); err != nil {
			return err
		}
		return insert(ctx, db, "b")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count(t, db))
}

func TestRunRollsBackOnError(t *testing.T) {
	db := openDB(t)
	boom := errors.New("boom")
	err := Run(context.Background(), db, func(ctx context.Context) error {
		if err := insert(ctx, db, "a"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db))
}

func TestRunJoinsOuterTransaction(t *testing.T) {
	db := openDB(t)
	err := Run(context.Background(), db, func(ctx context.Context) error {
		outer, _ := From(ctx)
		return Run(ctx, db, func(inner context.Context) error {
			got, ok := From(inner)
			assert.True(t, ok)
			assert.Same(t, outer, got)
			return insert(inner, db, "nested")
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count(t, db))
}

func TestUseWithoutTransaction(t *testing.T) {
	db := openDB(t)
	require.NoError(t, insert(context.Background(), db, "plain"))
	assert.Equal(t, 1, count(t, db))
}
