package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// GameConfig holds the tunable rules of a session, loaded from JSON.
// Durations are whole seconds.
type GameConfig struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Mode              Mode            `json:"mode"`
	Rows              int             `json:"rows"`
	Cols              int             `json:"cols"`
	Forms             int             `json:"forms"`
	MaxTime           int             `json:"max_time"`
	MatchScore        int             `json:"match_score"`
	SpawnInterval     int             `json:"spawn_interval"`
	SpawnOnStart      bool            `json:"spawn_on_start"`
	TimeBonus         int             `json:"time_bonus"`
	HintDuration      int             `json:"hint_duration"`
	TeleportDuration  int             `json:"teleport_duration"`
	FreezeDuration    int             `json:"freeze_duration"`
	InversionDuration int             `json:"inversion_duration"`
	PowerUps          []PowerUpWeight `json:"power_ups"`
}

// DefaultConfig returns the built-in rules of a mode: a 14x14 board with
// three forms and a two minute clock.
func DefaultConfig(m Mode) *GameConfig {
	name := "classic"
	if m == ModeDuo {
		name = "duo"
	}
	return &GameConfig{
		Name:              name,
		Description:       fmt.Sprintf("Built-in %s board", strings.ToLower(string(m))),
		Mode:              m,
		Rows:              14,
		Cols:              14,
		Forms:             3,
		MaxTime:           120,
		MatchScore:        2,
		SpawnInterval:     30,
		SpawnOnStart:      true,
		TimeBonus:         30,
		HintDuration:      10,
		TeleportDuration:  5,
		FreezeDuration:    3,
		InversionDuration: 10,
		PowerUps:          DefaultPowerUps(m),
	}
}

// EffectDuration returns how long a timed power-up lasts.
func (c *GameConfig) EffectDuration(k PowerUpKind) time.Duration {
	switch k {
	case Hint:
		return seconds(c.HintDuration)
	case Teleport:
		return seconds(c.TeleportDuration)
	case Freeze:
		return seconds(c.FreezeDuration)
	case Inversion:
		return seconds(c.InversionDuration)
	}
	return 0
}

// ValidateGameConfig validates a game configuration for correctness and playability
func ValidateGameConfig(config *GameConfig) error {
	if config == nil {
		return fmt.Errorf("config validation: config is nil")
	}
	if config.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if !config.Mode.Valid() {
		return fmt.Errorf("config validation: mode must be %q or %q, got %q", ModeSingle, ModeDuo, config.Mode)
	}

	if config.Rows < MinGridSize || config.Rows > MaxGridSize {
		return fmt.Errorf("config validation: rows must be between %d and %d, got %d", MinGridSize, MaxGridSize, config.Rows)
	}
	if config.Cols < MinGridSize || config.Cols > MaxGridSize {
		return fmt.Errorf("config validation: cols must be between %d and %d, got %d", MinGridSize, MaxGridSize, config.Cols)
	}
	if w := config.Cols - 2*Margin; w%2 != 0 {
		return fmt.Errorf("config validation: playable width must be even, got %d", w)
	}
	if config.Forms < 1 || config.Forms > MaxForms {
		return fmt.Errorf("config validation: forms must be between 1 and %d, got %d", MaxForms, config.Forms)
	}

	if config.MaxTime <= 0 {
		return fmt.Errorf("config validation: max_time must be positive, got %d", config.MaxTime)
	}
	if config.MatchScore < 0 {
		return fmt.Errorf("config validation: match_score must not be negative, got %d", config.MatchScore)
	}
	for _, d := range []struct {
		name  string
		value int
	}{
		{"spawn_interval", config.SpawnInterval},
		{"time_bonus", config.TimeBonus},
		{"hint_duration", config.HintDuration},
		{"teleport_duration", config.TeleportDuration},
		{"freeze_duration", config.FreezeDuration},
		{"inversion_duration", config.InversionDuration},
	} {
		if d.value <= 0 {
			return fmt.Errorf("config validation: %s must be positive, got %d", d.name, d.value)
		}
	}

	seen := make(map[PowerUpKind]bool)
	for i, w := range config.PowerUps {
		if !w.Kind.Valid() {
			return fmt.Errorf("config validation: power_ups[%d] has unknown kind %d", i, int(w.Kind))
		}
		if w.Kind.targetsOpponent() && config.Mode != ModeDuo {
			return fmt.Errorf("config validation: power-up %s needs an opponent", w.Kind)
		}
		if w.Weight <= 0 {
			return fmt.Errorf("config validation: power-up %s weight must be positive, got %d", w.Kind, w.Weight)
		}
		if seen[w.Kind] {
			return fmt.Errorf("config validation: power-up %s listed twice", w.Kind)
		}
		seen[w.Kind] = true
	}

	return nil
}

// LoadGameConfig loads a game configuration from a JSON file
func LoadGameConfig(filename string) (*GameConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseGameConfig(data)
}

// ParseGameConfig decodes and validates a JSON configuration.
func ParseGameConfig(data []byte) (*GameConfig, error) {
	var config GameConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	if err := ValidateGameConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadConfigByName loads <dir>/<name>.json
func LoadConfigByName(dir, configName string) (*GameConfig, error) {
	if !strings.HasSuffix(configName, ".json") {
		configName = configName + ".json"
	}
	config, err := LoadGameConfig(filepath.Join(dir, configName))
	if err != nil {
		return nil, fmt.Errorf("failed to load config '%s': %w", configName, err)
	}
	return config, nil
}
