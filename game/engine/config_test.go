package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	for _, mode := range []Mode{ModeSingle, ModeDuo} {
		cfg := DefaultConfig(mode)
		require.NoError(t, ValidateGameConfig(cfg), "mode %s", mode)
		assert.Equal(t, 14, cfg.Rows)
		assert.Equal(t, 120, cfg.MaxTime)
		assert.Equal(t, 2, cfg.MatchScore)
	}
	assert.Len(t, DefaultConfig(ModeSingle).PowerUps, 4)
	assert.Len(t, DefaultConfig(ModeDuo).PowerUps, 5)
}

func TestValidateGameConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *GameConfig)
	}{
		{"missing name", func(c *GameConfig) { c.Name = "" }},
		{"unknown mode", func(c *GameConfig) { c.Mode = "Trio" }},
		{"rows too small", func(c *GameConfig) { c.Rows = 4 }},
		{"cols too large", func(c *GameConfig) { c.Cols = 52 }},
		{"odd playable width", func(c *GameConfig) { c.Cols = 13 }},
		{"no forms", func(c *GameConfig) { c.Forms = 0 }},
		{"too many forms", func(c *GameConfig) { c.Forms = 4 }},
		{"zero time", func(c *GameConfig) { c.MaxTime = 0 }},
		{"negative score", func(c *GameConfig) { c.MatchScore = -1 }},
		{"zero hint", func(c *GameConfig) { c.HintDuration = 0 }},
		{"zero spawn interval", func(c *GameConfig) { c.SpawnInterval = 0 }},
		{"opponent effect in single", func(c *GameConfig) {
			c.PowerUps = append(c.PowerUps, PowerUpWeight{Kind: Freeze, Weight: 1})
		}},
		{"zero weight", func(c *GameConfig) { c.PowerUps[0].Weight = 0 }},
		{"duplicate kind", func(c *GameConfig) { c.PowerUps = append(c.PowerUps, c.PowerUps[0]) }},
		{"unknown kind", func(c *GameConfig) { c.PowerUps[0].Kind = 42 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(ModeSingle)
			tt.mutate(cfg)
			assert.Error(t, ValidateGameConfig(cfg))
		})
	}

	t.Run("teleport allowed in duo", func(t *testing.T) {
		cfg := DefaultConfig(ModeDuo)
		cfg.PowerUps = append(cfg.PowerUps, PowerUpWeight{Kind: Teleport, Weight: 2})
		assert.NoError(t, ValidateGameConfig(cfg))
	})

	t.Run("empty power-up table", func(t *testing.T) {
		cfg := DefaultConfig(ModeSingle)
		cfg.PowerUps = nil
		assert.NoError(t, ValidateGameConfig(cfg))
	})
}

func TestGameConfig_JSON(t *testing.T) {
	data := []byte(`{
		"name": "tiny",
		"description": "small board",
		"mode": "Duo",
		"rows": 8, "cols": 10, "forms": 2,
		"max_time": 60, "match_score": 3,
		"spawn_interval": 10, "spawn_on_start": false,
		"time_bonus": 15, "hint_duration": 5, "teleport_duration": 4,
		"freeze_duration": 2, "inversion_duration": 6,
		"power_ups": [{"kind": "freeze", "weight": 2}, {"kind": "inversion", "weight": 1}]
	}`)
	cfg, err := ParseGameConfig(data)
	require.NoError(t, err)
	assert.Equal(t, ModeDuo, cfg.Mode)
	assert.Equal(t, []PowerUpWeight{{Kind: Freeze, Weight: 2}, {Kind: Inversion, Weight: 1}}, cfg.PowerUps)
	assert.Equal(t, seconds(6), cfg.EffectDuration(Inversion))

	out, err := json.Marshal(cfg.PowerUps[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"freeze","weight":2}`, string(out))

	_, err = ParseGameConfig([]byte(`{"name":"x","mode":"Single","power_ups":[{"kind":"laser"}]}`))
	assert.Error(t, err)
}

func TestLoadConfigByName(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "qlink_config_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	data, err := json.MarshalIndent(DefaultConfig(ModeDuo), "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "duo.json"), data, 0644))

	cfg, err := LoadConfigByName(tempDir, "duo")
	require.NoError(t, err)
	assert.Equal(t, "duo", cfg.Name)

	_, err = LoadConfigByName(tempDir, "duo.json")
	assert.NoError(t, err)

	_, err = LoadConfigByName(tempDir, "missing")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("duo")
	require.NoError(t, err)
	assert.Equal(t, ModeDuo, m)
	m, err = ParseMode(" Single ")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, m)
	_, err = ParseMode("trio")
	assert.Error(t, err)
}
