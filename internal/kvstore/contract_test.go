package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedProfile struct {
	ProfileID  string            `json:"profile_id"`
	Attributes map[string]string `json:"attributes"`
}

// runStoreContract exercises the typed contract every backend must satisfy.
func runStoreContract(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing keys report not found", func(t *testing.T) {
		_, found, err := s.GetString(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = s.GetLong(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, found)

		_, found, err = GetData[cachedProfile](ctx, s, "absent")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("strings round trip and overwrite", func(t *testing.T) {
		require.NoError(t, s.SaveString(ctx, KeyProfileID, "temp"))
		require.NoError(t, s.SaveString(ctx, KeyProfileID, "confirmed"))
		v, found, err := s.GetString(ctx, KeyProfileID)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "confirmed", v)
	})

	t.Run("empty string is a stored value", func(t *testing.T) {
		require.NoError(t, s.SaveString(ctx, "empty", ""))
		v, found, err := s.GetString(ctx, "empty")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Empty(t, v)
	})

	t.Run("longs round trip", func(t *testing.T) {
		require.NoError(t, s.SaveLong(ctx, KeyProfileSyncedAt, 1_700_000_000_123))
		v, found, err := s.GetLong(ctx, KeyProfileSyncedAt)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(1_700_000_000_123), v)
	})

	t.Run("json blobs round trip", func(t *testing.T) {
		in := cachedProfile{ProfileID: "p1", Attributes: map[string]string{"tier": "gold"}}
		require.NoError(t, SaveData(ctx, s, KeyProfile, in))
		out, found, err := GetData[cachedProfile](ctx, s, KeyProfile)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, in, out)
	})

	t.Run("batch commits every key", func(t *testing.T) {
		b := NewBatch().
			String(KeyProfileID, "p2").
			Long(KeyProfileSyncedAt, 42).
			Data(KeyProfile, cachedProfile{ProfileID: "p2"})
		require.NoError(t, s.Commit(ctx, b))

		id, _, err := s.GetString(ctx, KeyProfileID)
		require.NoError(t, err)
		assert.Equal(t, "p2", id)
		at, _, err := s.GetLong(ctx, KeyProfileSyncedAt)
		require.NoError(t, err)
		assert.Equal(t, int64(42), at)
		p, found, err := GetData[cachedProfile](ctx, s, KeyProfile)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "p2", p.ProfileID)
	})

	t.Run("batch with encoding error writes nothing", func(t *testing.T) {
		b := NewBatch().
			String("batch_marker", "x").
			Data(KeyProfile, map[string]any{"bad": make(chan int)})
		require.Error(t, s.Commit(ctx, b))
		_, found, err := s.GetString(ctx, "batch_marker")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("clear removes everything", func(t *testing.T) {
		require.NoError(t, s.SaveString(ctx, KeyDeviceID, "d1"))
		require.NoError(t, s.Clear(ctx))
		for _, key := range []string{KeyDeviceID, KeyProfileID, KeyProfile, KeyProfileSyncedAt} {
			_, found, err := s.GetBytes(ctx, key)
			require.NoError(t, err)
			assert.False(t, found, key)
		}
	})
}
