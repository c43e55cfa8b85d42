package session

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/qlink/game/engine"
)

func TestManagerWithPersistence(t *testing.T) {
	dir := tempDir(t, "manager_persistence_test_*")
	defer os.RemoveAll(dir)

	persistence, err := NewFilePersistence(dir)
	require.NoError(t, err)
	manager := NewManagerWithPersistence(persistence, testConfig)

	sess, err := manager.Create("sav1", "classic", testConfig(engine.ModeSingle), engine.WithSeed(8))
	require.NoError(t, err)
	assert.False(t, persistence.Exists("sav1"), "sessions are persisted on SaveAllSessions, not on create")

	_, err = manager.Create("duo1", "duo", testConfig(engine.ModeDuo), engine.WithSeed(9))
	require.NoError(t, err)

	over, err := manager.Create("done", "classic", testConfig(engine.ModeSingle))
	require.NoError(t, err)
	over.Engine.Shutdown()

	var moved *engine.Snapshot
	require.NoError(t, sess.Do(func(e engine.Engine) error {
		if _, err := e.Move(engine.Player1, 1, 0); err != nil {
			return err
		}
		moved = e.Snapshot()
		return nil
	}))

	t.Run("SaveAllSessions", func(t *testing.T) {
		require.NoError(t, manager.SaveAllSessions())
		ids, err := persistence.ListAll()
		require.NoError(t, err)
		assert.Equal(t, []string{"duo1", "sav1"}, ids, "finished sessions are not saved")
		assert.False(t, sess.Engine.Paused(), "saving resumes running sessions")
	})

	t.Run("Get restores from persistence", func(t *testing.T) {
		fresh := NewManagerWithPersistence(persistence, testConfig)
		restored, err := fresh.Get("SAV1")
		require.NoError(t, err)
		assert.Equal(t, "sav1", restored.ID)

		snap := restored.Engine.Snapshot()
		assert.True(t, snap.Paused, "restored sessions wait to be resumed")
		assert.Equal(t, moved.Tiles, snap.Tiles)
		assert.Equal(t, moved.Cursors[0].Pos, snap.Cursors[0].Pos)

		again, err := fresh.Get("sav1")
		require.NoError(t, err)
		assert.Same(t, restored, again)
	})

	t.Run("LoadPersistedSessions", func(t *testing.T) {
		fresh := NewManagerWithPersistence(persistence, nil)
		require.NoError(t, fresh.LoadPersistedSessions())
		assert.Equal(t, 2, fresh.Count())

		duo, err := fresh.Get("duo1")
		require.NoError(t, err)
		assert.Equal(t, engine.ModeDuo, duo.Engine.Mode())
	})

	t.Run("corrupt records are skipped", func(t *testing.T) {
		require.NoError(t, os.WriteFile(dir+"/junk.txt", []byte("garbage"), 0644))
		fresh := NewManagerWithPersistence(persistence, testConfig)
		require.NoError(t, fresh.LoadPersistedSessions())
		assert.Equal(t, 2, fresh.Count())

		_, err := fresh.Get("junk")
		assert.ErrorIs(t, err, engine.ErrMalformedRecord)
		require.NoError(t, persistence.Delete("junk"))
	})

	t.Run("Delete removes the record", func(t *testing.T) {
		require.NoError(t, manager.Delete("sav1"))
		assert.False(t, persistence.Exists("sav1"))

		fresh := NewManagerWithPersistence(persistence, testConfig)
		_, err := fresh.Get("sav1")
		assert.ErrorIs(t, err, ErrSessionNotFound)

		require.NoError(t, fresh.Delete("duo1"), "a persisted-only session can be deleted")
		assert.False(t, persistence.Exists("duo1"))
	})
}
