package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
)

var errNotFound = errors.New("not found")

// MockSessionManager implements service.SessionManager for testing
type MockSessionManager struct {
	mu       sync.Mutex
	sessions map[string]*service.Session
}

func NewMockSessionManager() *MockSessionManager {
	return &MockSessionManager{sessions: make(map[string]*service.Session)}
}

func (m *MockSessionManager) Create(id, configID string, config *engine.GameConfig, opts ...engine.Option) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = fmt.Sprintf("s%03d", len(m.sessions)+1)
	}
	if _, exists := m.sessions[id]; exists {
		return nil, errors.New("session already exists")
	}
	eng, err := engine.NewSession(config, opts...)
	if err != nil {
		return nil, err
	}
	sess := &service.Session{
		ID:             id,
		ConfigID:       configID,
		Engine:         eng,
		Config:         config,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	m.sessions[id] = sess
	return sess, nil
}

func (m *MockSessionManager) Get(id string) (*service.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, errNotFound
	}
	return sess, nil
}

func (m *MockSessionManager) List() []*service.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*service.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

func (m *MockSessionManager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return errNotFound
	}
	delete(m.sessions, id)
	return nil
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	configs map[string]*engine.GameConfig
}

func NewMockConfigManager() *MockConfigManager {
	single := engine.DefaultConfig(engine.ModeSingle)
	single.Name = "small"
	single.Rows, single.Cols = 8, 8
	single.SpawnOnStart = false
	duo := engine.DefaultConfig(engine.ModeDuo)
	return &MockConfigManager{configs: map[string]*engine.GameConfig{"small": single, "duo": duo}}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.GameConfig, error) {
	config, ok := m.configs[name]
	if !ok {
		return nil, errNotFound
	}
	return config, nil
}

func (m *MockConfigManager) ListConfigs() ([]*service.ConfigInfo, error) {
	var out []*service.ConfigInfo
	for id, config := range m.configs {
		out = append(out, service.NewConfigInfo(id+".json", id, config))
	}
	return out, nil
}

func (m *MockConfigManager) GetDefault() *engine.GameConfig { return m.configs["small"] }

func (m *MockConfigManager) DefaultFor(mode engine.Mode) *engine.GameConfig {
	if mode == engine.ModeDuo {
		return m.configs["duo"]
	}
	return m.configs["small"]
}

func (m *MockConfigManager) SaveConfig(name string, config *engine.GameConfig) error {
	if err := engine.ValidateGameConfig(config); err != nil {
		return err
	}
	m.configs[name] = config
	return nil
}

// memoryStore implements service.RecordStore in memory
type memoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newMemoryStore() *memoryStore { return &memoryStore{records: map[string][]byte{}} }

func (m *memoryStore) Save(id string, rec *engine.Record) error {
	text, err := rec.MarshalText()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[id] = text
	return nil
}

func (m *memoryStore) Load(id string) (*engine.Record, error) {
	m.mu.Lock()
	text, ok := m.records[id]
	m.mu.Unlock()
	if !ok {
		return nil, errNotFound
	}
	return engine.DecodeRecord(bytes.NewReader(text))
}

func (m *memoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *memoryStore) ListAll() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryStore) Exists(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	return ok
}

func newTestService() (service.GameService, *memoryStore) {
	store := newMemoryStore()
	return service.NewGameService(NewMockSessionManager(), NewMockConfigManager(), store), store
}

func seed(n uint64) *uint64 { return &n }

func createSession(t *testing.T, svc service.GameService, req service.CreateSessionRequest) *service.SessionInfo {
	t.Helper()
	if req.Seed == nil {
		req.Seed = seed(3)
	}
	info, err := svc.CreateSession(context.Background(), req)
	require.NoError(t, err)
	return info
}

// linkablePair finds a pair on the current board of a session.
func linkablePair(t *testing.T, svc service.GameService, id string) (engine.Position, engine.Position) {
	t.Helper()
	text, err := svc.ExportRecord(context.Background(), id)
	require.NoError(t, err)
	rec, err := engine.DecodeRecord(bytes.NewReader(text))
	require.NoError(t, err)
	a, b, _, ok := engine.FindPair(rec.Grid())
	require.True(t, ok)
	return a, b
}

func TestGameService_CreateSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	t.Run("default config", func(t *testing.T) {
		info := createSession(t, svc, service.CreateSessionRequest{})
		assert.Equal(t, "small", info.ConfigName)
		assert.Equal(t, engine.ModeSingle, info.Mode)
		require.NotNil(t, info.GameState)
		assert.Equal(t, 8, info.GameState.Rows)
		assert.Len(t, info.GameState.Cursors, 1)
	})

	t.Run("by mode", func(t *testing.T) {
		info := createSession(t, svc, service.CreateSessionRequest{Mode: "duo"})
		assert.Equal(t, engine.ModeDuo, info.Mode)
		assert.Len(t, info.GameState.Cursors, 2)
	})

	t.Run("by config id", func(t *testing.T) {
		info := createSession(t, svc, service.CreateSessionRequest{ConfigID: "duo"})
		assert.Equal(t, "duo", info.ConfigName)
	})

	t.Run("mode conflicts with config", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, service.CreateSessionRequest{ConfigID: "small", Mode: engine.ModeDuo})
		assert.ErrorIs(t, err, engine.ErrModeMismatch)
	})

	t.Run("unknown config", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, service.CreateSessionRequest{ConfigID: "nope"})
		assert.ErrorIs(t, err, errNotFound)
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := svc.CreateSession(ctx, service.CreateSessionRequest{Mode: "trio"})
		assert.Error(t, err)
	})

	t.Run("same seed deals the same board", func(t *testing.T) {
		a := createSession(t, svc, service.CreateSessionRequest{Seed: seed(9)})
		b := createSession(t, svc, service.CreateSessionRequest{Seed: seed(9)})
		assert.Equal(t, a.GameState.Tiles, b.GameState.Tiles)
	})

	sessions, err := svc.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 5)
}

func TestGameService_GetAndDelete(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{})

	got, err := svc.GetSession(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.False(t, got.LastAccessedAt.Before(info.LastAccessedAt))

	require.NoError(t, svc.DeleteSession(ctx, info.ID))
	_, err = svc.GetSession(ctx, info.ID)
	assert.ErrorIs(t, err, errNotFound)
	assert.ErrorIs(t, svc.DeleteSession(ctx, info.ID), errNotFound)
}

func TestGameService_Actions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{})

	t.Run("move", func(t *testing.T) {
		resp, err := svc.Move(ctx, info.ID, engine.Player1, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeMoved, resp.Result.Outcome)
		assert.Equal(t, engine.Position{X: 1, Y: 0}, resp.GameState.Cursors[0].Pos)
		assert.Contains(t, resp.Message, "Moved to")
	})

	t.Run("bad step", func(t *testing.T) {
		_, err := svc.Move(ctx, info.ID, engine.Player1, 2, 0)
		assert.ErrorIs(t, err, engine.ErrInvalidPosition)
	})

	t.Run("unknown player", func(t *testing.T) {
		_, err := svc.Move(ctx, info.ID, engine.Player2, 1, 0)
		assert.ErrorIs(t, err, engine.ErrUnknownPlayer)
	})

	t.Run("point without teleport", func(t *testing.T) {
		_, err := svc.Point(ctx, info.ID, engine.Player1, engine.Position{X: 0, Y: 0})
		assert.ErrorIs(t, err, engine.ErrTeleportInactive)
	})

	t.Run("match a pair", func(t *testing.T) {
		a, b := linkablePair(t, svc, info.ID)
		resp, err := svc.Activate(ctx, info.ID, engine.Player1, a)
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeSelected, resp.Result.Outcome)

		resp, err = svc.Activate(ctx, info.ID, engine.Player1, b)
		require.NoError(t, err)
		assert.Equal(t, engine.OutcomeMatched, resp.Result.Outcome)
		assert.Equal(t, []int{2}, resp.GameState.Scores)
		assert.NotEmpty(t, resp.GameState.LastPath)
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := svc.Move(ctx, "zzzz", engine.Player1, 1, 0)
		assert.ErrorIs(t, err, errNotFound)
	})
}

func TestGameService_PauseResume(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{})

	snap, err := svc.Pause(ctx, info.ID)
	require.NoError(t, err)
	assert.True(t, snap.Paused)

	_, err = svc.Move(ctx, info.ID, engine.Player1, 1, 0)
	assert.ErrorIs(t, err, engine.ErrPaused)

	assert.Empty(t, svc.TickAll(ctx), "paused sessions do not tick")

	snap, err = svc.Resume(ctx, info.ID)
	require.NoError(t, err)
	assert.False(t, snap.Paused)
}

func TestGameService_TickAll(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a := createSession(t, svc, service.CreateSessionRequest{})
	b := createSession(t, svc, service.CreateSessionRequest{Mode: engine.ModeDuo})
	_, err := svc.Pause(ctx, b.ID)
	require.NoError(t, err)

	updates := svc.TickAll(ctx)
	require.Len(t, updates, 1)
	assert.Equal(t, a.ID, updates[0].SessionID)
	assert.Equal(t, a.GameState.MaxTime-1, updates[0].GameState.TimeLeft)
	assert.False(t, updates[0].Ended)

	t.Run("clock runs out", func(t *testing.T) {
		var last *service.TickUpdate
		for i := 0; i < a.GameState.MaxTime; i++ {
			for _, u := range svc.TickAll(ctx) {
				if u.SessionID == a.ID {
					last = u
				}
			}
		}
		require.NotNil(t, last)
		assert.True(t, last.Ended)
		assert.Equal(t, engine.EndTimeUp, last.GameState.Result.Reason)
		assert.Empty(t, svc.TickAll(ctx), "finished sessions do not tick")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.Empty(t, svc.TickAll(cctx))
	})
}

func TestGameService_SaveLoad(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{})

	_, err := svc.Move(ctx, info.ID, engine.Player1, 1, 0)
	require.NoError(t, err)
	before, err := svc.GetGameState(ctx, info.ID)
	require.NoError(t, err)

	saved, err := svc.SaveGame(ctx, info.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.SaveID)
	assert.True(t, store.Exists(saved.SaveID))
	assert.Equal(t, engine.ModeSingle, saved.Mode)

	after, err := svc.GetGameState(ctx, info.ID)
	require.NoError(t, err)
	assert.False(t, after.Paused, "a running session resumes after saving")

	// change the board, then restore it
	a, b := linkablePair(t, svc, info.ID)
	_, err = svc.Activate(ctx, info.ID, engine.Player1, a)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, info.ID, engine.Player1, b)
	require.NoError(t, err)

	snap, err := svc.LoadGame(ctx, info.ID, saved.SaveID)
	require.NoError(t, err)
	assert.Equal(t, before.Tiles, snap.Tiles)
	assert.Equal(t, before.Scores, snap.Scores)
	assert.Equal(t, before.Cursors, snap.Cursors)
	assert.False(t, snap.Paused)

	ids, err := svc.ListSaves(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{saved.SaveID}, ids)

	t.Run("paused session stays paused", func(t *testing.T) {
		_, err := svc.Pause(ctx, info.ID)
		require.NoError(t, err)
		_, err = svc.SaveGame(ctx, info.ID)
		require.NoError(t, err)
		snap, err := svc.GetGameState(ctx, info.ID)
		require.NoError(t, err)
		assert.True(t, snap.Paused)
		_, err = svc.Resume(ctx, info.ID)
		require.NoError(t, err)
	})

	t.Run("mode mismatch", func(t *testing.T) {
		duo := createSession(t, svc, service.CreateSessionRequest{Mode: engine.ModeDuo})
		_, err := svc.LoadGame(ctx, duo.ID, saved.SaveID)
		assert.ErrorIs(t, err, engine.ErrModeMismatch)
	})

	t.Run("missing save", func(t *testing.T) {
		_, err := svc.LoadGame(ctx, info.ID, "nope")
		assert.ErrorIs(t, err, errNotFound)
	})
}

func TestGameService_ExportRecord(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{Mode: engine.ModeDuo})

	text, err := svc.ExportRecord(ctx, info.ID)
	require.NoError(t, err)
	rec, err := engine.DecodeRecord(bytes.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, engine.ModeDuo, rec.Mode)
	assert.Equal(t, info.GameState.Rows, rec.Rows)
}

func TestGameService_FinishedSession(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{})
	for i := 0; i < info.GameState.MaxTime; i++ {
		svc.TickAll(ctx)
	}

	_, err := svc.SaveGame(ctx, info.ID)
	assert.ErrorIs(t, err, engine.ErrSessionOver)
	_, err = svc.Move(ctx, info.ID, engine.Player1, 1, 0)
	assert.ErrorIs(t, err, engine.ErrSessionOver)
	_, err = svc.Pause(ctx, info.ID)
	assert.ErrorIs(t, err, engine.ErrSessionOver)
}

func TestGameService_SavesDisabled(t *testing.T) {
	svc := service.NewGameService(NewMockSessionManager(), NewMockConfigManager(), nil)
	ctx := context.Background()
	info := createSession(t, svc, service.CreateSessionRequest{})

	_, err := svc.SaveGame(ctx, info.ID)
	assert.ErrorIs(t, err, service.ErrSavesDisabled)
	_, err = svc.LoadGame(ctx, info.ID, "x")
	assert.ErrorIs(t, err, service.ErrSavesDisabled)

	_, err = svc.ExportRecord(ctx, info.ID)
	assert.NoError(t, err, "export does not need a store")
}

func TestGameService_Configs(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	configs, err := svc.ListConfigs(ctx)
	require.NoError(t, err)
	assert.Len(t, configs, 2)

	custom := engine.DefaultConfig(engine.ModeSingle)
	custom.Name = "custom"
	require.NoError(t, svc.SaveConfig(ctx, "custom", custom))
	got, err := svc.LoadConfig(ctx, "custom")
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	bad := engine.DefaultConfig(engine.ModeSingle)
	bad.Rows = 1
	assert.Error(t, svc.SaveConfig(ctx, "bad", bad))
}
