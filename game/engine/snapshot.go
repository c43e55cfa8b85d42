package engine

// CursorView is the renderer's copy of a cursor and its status effects.
type CursorView struct {
	ID       int       `json:"id"`
	Pos      Position  `json:"pos"`
	Selected *Position `json:"selected,omitempty"`
	Frozen   bool      `json:"frozen"`
	Inverted bool      `json:"inverted"`
	Teleport bool      `json:"teleport"`
}

// Effect is a running timed power-up.
type Effect struct {
	Kind      PowerUpKind `json:"kind"`
	Player    int         `json:"player"`
	Remaining int         `json:"remaining"`
}

// Snapshot is a read-only deep copy of a session for renderers and
// transports.
type Snapshot struct {
	Mode      Mode              `json:"mode"`
	Rows      int               `json:"rows"`
	Cols      int               `json:"cols"`
	Tiles     [][]Tile          `json:"tiles"`
	Remaining int               `json:"remaining"`
	Cursors   []CursorView      `json:"cursors"`
	Scores    []int             `json:"scores"`
	TimeLeft  int               `json:"time_left"`
	MaxTime   int               `json:"max_time"`
	PowerUps  []PowerUp         `json:"power_ups"`
	Hint      *HintPair         `json:"hint,omitempty"`
	LastPath  Path              `json:"last_path,omitempty"`
	Effects   []Effect          `json:"effects"`
	Textures  [TextureCount]int `json:"textures"`
	Paused    bool              `json:"paused"`
	Over      bool              `json:"over"`
	Result    *Result           `json:"result,omitempty"`
}

// Snapshot copies the visible state of the session.
func (s *Session) Snapshot() *Snapshot {
	snap := &Snapshot{
		Mode:      s.config.Mode,
		Rows:      s.grid.Rows(),
		Cols:      s.grid.Cols(),
		Tiles:     s.grid.Rows2D(),
		Remaining: s.grid.Remaining(),
		Scores:    append([]int(nil), s.rules.scores...),
		TimeLeft:  s.timeLeft,
		MaxTime:   s.config.MaxTime,
		PowerUps:  s.powerUps.list(),
		LastPath:  append(Path(nil), s.rules.lastPath...),
		Effects:   []Effect{},
		Textures:  s.textures,
		Paused:    s.timers.Paused(),
		Over:      s.result != nil,
	}
	for _, c := range s.rules.cursors {
		v := CursorView{
			ID:       c.ID,
			Pos:      c.Pos,
			Frozen:   s.frozen(c.ID),
			Inverted: s.inverted(c.ID),
			Teleport: s.teleporting(c.ID),
		}
		if c.Selected != nil {
			sel := *c.Selected
			v.Selected = &sel
		}
		snap.Cursors = append(snap.Cursors, v)
	}
	if s.hint != nil {
		h := *s.hint
		h.Path = append(Path(nil), s.hint.Path...)
		snap.Hint = &h
	}
	for _, key := range s.timers.Keys() {
		kind, ok := key.Kind.effect()
		if !ok {
			continue
		}
		left, _ := s.timers.Remaining(key)
		snap.Effects = append(snap.Effects, Effect{Kind: kind, Player: key.Player, Remaining: int(left.Seconds())})
	}
	if s.result != nil {
		r := *s.result
		r.Scores = append([]int(nil), s.result.Scores...)
		snap.Result = &r
	}
	return snap
}
