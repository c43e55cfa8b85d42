package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wricardo/qlink/game/engine"
)

func testConfig(mode engine.Mode) *engine.GameConfig {
	config := engine.DefaultConfig(mode)
	config.Rows, config.Cols = 8, 8
	config.SpawnOnStart = false
	return config
}

// pausedRecord deals a seeded board and saves it.
func pausedRecord(t *testing.T, mode engine.Mode, seed uint64) *engine.Record {
	t.Helper()
	s, err := engine.NewSession(testConfig(mode), engine.WithSeed(seed))
	require.NoError(t, err)
	require.NoError(t, s.Pause())
	rec, err := s.Save()
	require.NoError(t, err)
	return rec
}

func tempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", pattern)
	require.NoError(t, err)
	return dir
}

// exercisePersistence runs the shared contract of every SessionPersistence.
func exercisePersistence(t *testing.T, p SessionPersistence) {
	single := pausedRecord(t, engine.ModeSingle, 1)
	duo := pausedRecord(t, engine.ModeDuo, 2)

	t.Run("save and load", func(t *testing.T) {
		require.NoError(t, p.Save("rec-1", single))
		require.True(t, p.Exists("rec-1"))

		got, err := p.Load("rec-1")
		require.NoError(t, err)
		require.Equal(t, single, got)
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, p.Save("rec-1", duo))
		got, err := p.Load("rec-1")
		require.NoError(t, err)
		require.Equal(t, engine.ModeDuo, got.Mode)
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, p.Save("rec-0", single))
		ids, err := p.ListAll()
		require.NoError(t, err)
		require.Equal(t, []string{"rec-0", "rec-1"}, ids)
	})

	t.Run("missing", func(t *testing.T) {
		require.False(t, p.Exists("nope"))
		_, err := p.Load("nope")
		require.ErrorIs(t, err, ErrRecordNotFound)
		require.ErrorIs(t, p.Delete("nope"), ErrRecordNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		require.ErrorIs(t, p.Save("../escape", single), ErrInvalidSessionID)
		require.ErrorIs(t, p.Save("", single), ErrInvalidSessionID)
	})

	t.Run("invalid record", func(t *testing.T) {
		bad := *single
		bad.Rows = 2
		require.ErrorIs(t, p.Save("bad", &bad), engine.ErrMalformedRecord)
		require.False(t, p.Exists("bad"))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, p.Delete("rec-0"))
		require.NoError(t, p.Delete("rec-1"))
		ids, err := p.ListAll()
		require.NoError(t, err)
		require.Empty(t, ids)
	})
}
