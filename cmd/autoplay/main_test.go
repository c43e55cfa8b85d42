package main

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/qlink/api"
	"github.com/wricardo/qlink/game/config"
	"github.com/wricardo/qlink/game/engine"
	"github.com/wricardo/qlink/game/service"
	"github.com/wricardo/qlink/game/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	for _, mode := range []engine.Mode{engine.ModeSingle, engine.ModeDuo} {
		cfg := engine.DefaultConfig(mode)
		cfg.Name = "small-" + string(mode)
		cfg.Rows, cfg.Cols = 8, 8
		cfg.SpawnOnStart = false
		data, err := json.Marshal(cfg)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Name+".json"), data, 0644))
	}
	configs, err := config.NewManager(dir)
	require.NoError(t, err)

	svc := service.NewGameService(session.NewManager(), configs, nil)
	ts := httptest.NewServer(api.NewServer(svc, nil))
	t.Cleanup(ts.Close)
	return ts
}

func TestPlay(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	for _, tc := range []struct {
		config string
		player int
	}{
		{"small-Single", 1},
		{"small-Duo", 2},
	} {
		t.Run(tc.config, func(t *testing.T) {
			c := NewClient(ts.URL+"/", tc.player)
			info, err := c.CreateSession(ctx, tc.config, "")
			require.NoError(t, err)
			assert.Equal(t, info.ID, c.sessionID)

			stats, err := Play(ctx, c, 1000, 0)
			require.NoError(t, err)
			require.NotNil(t, stats.Final)
			assert.True(t, stats.Final.Over)
			assert.Positive(t, stats.Matches)
			assert.GreaterOrEqual(t, stats.Moves, 2*stats.Matches)
			assert.Equal(t, 16-2*stats.Matches, stats.Final.Remaining)
			assert.Equal(t, 2*stats.Matches, stats.Final.Scores[tc.player-1])
		})
	}
}

func TestPlay_MaxMoves(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := NewClient(ts.URL, 1)
	_, err := c.CreateSession(ctx, "small-Single", "")
	require.NoError(t, err)

	stats, err := Play(ctx, c, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Moves)
	assert.Equal(t, 1, stats.Matches)
	assert.Equal(t, 14, stats.Final.Remaining)
}

func TestPlay_ResumesPausedSession(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	c := NewClient(ts.URL, 1)
	_, err := c.CreateSession(ctx, "small-Single", "")
	require.NoError(t, err)
	require.NoError(t, c.do(ctx, "POST", c.path("/pause"), nil, nil))

	stats, err := Play(ctx, c, 2, 0)
	require.NoError(t, err)
	assert.False(t, stats.Final.Paused)
	assert.Equal(t, 1, stats.Matches)
}

func TestClient_Errors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	c := NewClient(ts.URL, 1)
	_, err := c.CreateSession(ctx, "missing", "")
	assert.ErrorContains(t, err, "create session")

	c.sessionID = "beef"
	_, err = c.GetState(ctx)
	assert.ErrorContains(t, err, "session not found")

	_, err = Play(ctx, c, 10, 0)
	assert.Error(t, err)

	down := NewClient("http://127.0.0.1:1", 1)
	_, err = down.GetState(ctx)
	assert.Error(t, err)
}

func TestSelected(t *testing.T) {
	held := engine.Position{X: 3, Y: 4}
	snap := &engine.Snapshot{Cursors: []engine.CursorView{
		{ID: 1},
		{ID: 2, Selected: &held},
	}}
	assert.Nil(t, selected(snap, 1))
	assert.Equal(t, &held, selected(snap, 2))
	assert.Nil(t, selected(snap, 3))
}
