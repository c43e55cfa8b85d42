package engine

import (
	"errors"
	"fmt"
	"strings"
)

// TileState is the selection state of a grid cell. The numeric values are
// the ones written to save records.
type TileState int

const (
	Empty    TileState = 0
	Inactive TileState = 1
	Active   TileState = 2
)

// Form is the matching category of a tile.
type Form int

// NoForm marks a cell that holds no tile.
const NoForm Form = -1

const (
	// Margin is the width of the always-empty border around the playable region
	Margin = 2

	// Validation constants
	MinGridSize  = 5
	MaxGridSize  = 50
	MaxForms     = 3
	TextureCount = 3
	MaxTextureID = 7

	// Players are numbered from 1; 0 is used for effects that belong to no player
	Player1    = 1
	Player2    = 2
	NoPlayer   = 0
	MaxPlayers = 2
)

var (
	ErrInvalidPosition  = errors.New("invalid position")
	ErrMalformedRecord  = errors.New("malformed record")
	ErrModeMismatch     = errors.New("record mode does not match session mode")
	ErrNotPaused        = errors.New("session must be paused")
	ErrPaused           = errors.New("session is paused")
	ErrSessionOver      = errors.New("session is over")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrTeleportInactive = errors.New("teleport is not active for player")
	ErrUnknownMode      = errors.New("unknown mode")
)

// Mode selects single-player or local two-player play.
type Mode string

const (
	ModeSingle Mode = "Single"
	ModeDuo    Mode = "Duo"
)

// Players returns how many cursors a session of this mode has.
func (m Mode) Players() int {
	if m == ModeDuo {
		return 2
	}
	return 1
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeSingle || m == ModeDuo
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return ModeSingle, nil
	case "duo":
		return ModeDuo, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
}

// Tile is one grid cell. Form is NoForm exactly when State is Empty.
type Tile struct {
	Form  Form      `json:"form"`
	State TileState `json:"state"`
}

// EmptyTile is the zero content of a cell.
var EmptyTile = Tile{Form: NoForm, State: Empty}

// Position represents x,y coordinates; X is the column and Y the row
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NoPosition is written for an absent player.
var NoPosition = Position{X: -1, Y: -1}

// Add returns the position offset by dx, dy.
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// neighbours lists the 4-neighbour offsets in the order teleport probes them.
var neighbours = [4][2]int{{0, -1}, {0, 1}, {-1, 0}, {1, 0}}

// PowerUpKind identifies a collectible effect. The numeric values are the
// ones written to save records.
type PowerUpKind int

const (
	TimeBonus PowerUpKind = iota
	Reshuffle
	Hint
	Teleport
	Freeze
	Inversion
)

var powerUpNames = [...]string{
	TimeBonus: "time_bonus",
	Reshuffle: "reshuffle",
	Hint:      "hint",
	Teleport:  "teleport",
	Freeze:    "freeze",
	Inversion: "inversion",
}

// Valid reports whether k is a known kind.
func (k PowerUpKind) Valid() bool {
	return k >= TimeBonus && k <= Inversion
}

func (k PowerUpKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("PowerUpKind(%d)", int(k))
	}
	return powerUpNames[k]
}

// MarshalText encodes the kind by name for JSON configs and snapshots.
func (k PowerUpKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid power-up kind %d", int(k))
	}
	return []byte(powerUpNames[k]), nil
}

// UnmarshalText decodes a kind name.
func (k *PowerUpKind) UnmarshalText(text []byte) error {
	kind, err := ParsePowerUpKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParsePowerUpKind looks a kind up by name.
func ParsePowerUpKind(s string) (PowerUpKind, error) {
	for i, name := range powerUpNames {
		if name == s {
			return PowerUpKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown power-up kind %q", s)
}

// targetsOpponent reports whether the effect lands on the other player.
func (k PowerUpKind) targetsOpponent() bool {
	return k == Freeze || k == Inversion
}

// Outcome describes what an input did.
type Outcome string

const (
	OutcomeMoved      Outcome = "moved"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeFrozen     Outcome = "frozen"
	OutcomeIgnored    Outcome = "ignored"
	OutcomeSelected   Outcome = "selected"
	OutcomeDeselected Outcome = "deselected"
	OutcomeMatched    Outcome = "matched"
	OutcomeMismatched Outcome = "mismatched"
)

// ActionResult reports the effect of one Move, Activate or Point call.
type ActionResult struct {
	Player     int        `json:"player"`
	Outcome    Outcome    `json:"outcome"`
	From       Position   `json:"from"`
	To         Position   `json:"to"`
	Tiles      []Position `json:"tiles,omitempty"`
	Path       Path       `json:"path,omitempty"`
	ScoreDelta int        `json:"score_delta,omitempty"`
	Collected  *PowerUp   `json:"collected,omitempty"`
	GameOver   bool       `json:"game_over"`
}

// EndReason says why a session finished.
type EndReason string

const (
	EndNoMoves  EndReason = "no_moves"
	EndTimeUp   EndReason = "time_up"
	EndShutdown EndReason = "shutdown"
)

// Result is the final outcome of a session. Winner is 0 for single-player
// sessions and for draws.
type Result struct {
	Reason EndReason `json:"reason"`
	Scores []int     `json:"scores"`
	Winner int       `json:"winner"`
	Draw   bool      `json:"draw"`
}
