package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T, path, namespace string) *Store {
	t.Helper()
	backend, err := OpenSQL(context.Background(), "sqlite", path, namespace)
	require.NoError(t, err)
	s := New(backend)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, openSQLite(t, filepath.Join(t.TempDir(), "kv.db"), "paykit"))
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	backend, err := OpenSQL(ctx, "sqlite", path, "paykit")
	require.NoError(t, err)
	s := New(backend)
	require.NoError(t, s.SaveString(ctx, KeyDeviceID, "device-1"))
	require.NoError(t, s.Close())

	reopened := openSQLite(t, path, "paykit")
	v, found, err := reopened.GetString(ctx, KeyDeviceID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "device-1", v)
}

func TestSQLiteStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")
	a := openSQLite(t, path, "app-a")
	b := openSQLite(t, path, "app-b")

	require.NoError(t, a.SaveString(ctx, KeyProfileID, "a-profile"))
	require.NoError(t, b.SaveString(ctx, KeyProfileID, "b-profile"))
	require.NoError(t, a.Clear(ctx))

	_, found, err := a.GetString(ctx, KeyProfileID)
	require.NoError(t, err)
	assert.False(t, found)

	v, found, err := b.GetString(ctx, KeyProfileID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "b-profile", v)
}

func TestOpenSQL_UnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "oracle", "dsn", "ns")
	require.Error(t, err)
}

func TestPostgresRebind(t *testing.T) {
	d := postgresDialect{}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", d.Rebind("SELECT a FROM t WHERE x = ? AND y = ?"))
	assert.Equal(t, "no params", d.Rebind("no params"))
	assert.Equal(t, "x = ?", sqliteDialect{}.Rebind("x = ?"))
}
