package service

import (
	"time"

	"github.com/wricardo/qlink/game/engine"
)

// CreateSessionRequest selects the rules of a new session. An empty ConfigID
// picks the default configuration for Mode (or the overall default when
// Mode is empty too).
type CreateSessionRequest struct {
	ConfigID string      `json:"config_id,omitempty"`
	Mode     engine.Mode `json:"mode,omitempty"`
	Seed     *uint64     `json:"seed,omitempty"`
}

// SessionInfo provides information about a game session
type SessionInfo struct {
	ID             string             `json:"id"`
	ConfigName     string             `json:"config_name"`
	Mode           engine.Mode        `json:"mode"`
	CreatedAt      time.Time          `json:"created_at"`
	LastAccessedAt time.Time          `json:"last_accessed_at"`
	GameState      *engine.Snapshot   `json:"game_state"`
	GameConfig     *engine.GameConfig `json:"game_config"`
}

// ActionResponse pairs the outcome of one input with the state it produced.
type ActionResponse struct {
	Result    *engine.ActionResult `json:"result"`
	GameState *engine.Snapshot     `json:"game_state"`
	Message   string               `json:"message"`
}

// SaveInfo identifies a stored record.
type SaveInfo struct {
	SaveID    string      `json:"save_id"`
	SessionID string      `json:"session_id"`
	Mode      engine.Mode `json:"mode"`
	SavedAt   time.Time   `json:"saved_at"`
}

// TickUpdate is the state of a session after a clock tick.
type TickUpdate struct {
	SessionID string           `json:"session_id"`
	GameState *engine.Snapshot `json:"game_state"`
	Ended     bool             `json:"ended"`
}

// ConfigInfo provides information about a game configuration
type ConfigInfo struct {
	Filename    string      `json:"filename"`
	ConfigID    string      `json:"config_id"` // The identifier to use for session creation
	Name        string      `json:"name"`      // Display name
	Description string      `json:"description"`
	Mode        engine.Mode `json:"mode"`
	Rows        int         `json:"rows"`
	Cols        int         `json:"cols"`
	Forms       int         `json:"forms"`
	MaxTime     int         `json:"max_time"`
}

// NewConfigInfo summarizes a configuration stored in filename.
func NewConfigInfo(filename, id string, config *engine.GameConfig) *ConfigInfo {
	return &ConfigInfo{
		Filename:    filename,
		ConfigID:    id,
		Name:        config.Name,
		Description: config.Description,
		Mode:        config.Mode,
		Rows:        config.Rows,
		Cols:        config.Cols,
		Forms:       config.Forms,
		MaxTime:     config.MaxTime,
	}
}

// describe turns an action outcome into a short human-readable message.
// actedOn is the tile an activation touched, or the cursor cell when none.
func actedOn(res *engine.ActionResult) engine.Position {
	if len(res.Tiles) > 0 {
		return res.Tiles[0]
	}
	return res.To
}

func describe(res *engine.ActionResult) string {
	switch res.Outcome {
	case engine.OutcomeMoved:
		if res.Collected != nil {
			return "Moved to " + res.To.String() + " and collected " + res.Collected.Kind.String()
		}
		return "Moved to " + res.To.String()
	case engine.OutcomeBlocked:
		return "Blocked"
	case engine.OutcomeFrozen:
		return "Frozen, input ignored"
	case engine.OutcomeIgnored:
		return "Nothing to select there"
	case engine.OutcomeSelected:
		return "Selected " + actedOn(res).String()
	case engine.OutcomeDeselected:
		return "Deselected " + actedOn(res).String()
	case engine.OutcomeMatched:
		if res.GameOver {
			return "Matched, game over"
		}
		return "Matched"
	case engine.OutcomeMismatched:
		return "No match"
	}
	return string(res.Outcome)
}
