package engine

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Session is one game: a grid, its cursors, the clock, power-ups and timed
// effects. It is not safe for concurrent use; callers serialize access.
type Session struct {
	config   *GameConfig
	rng      *rand.Rand
	grid     *Grid
	rules    *Rules
	timers   *Scheduler
	powerUps *powerUpIndex
	timeLeft int
	hint     *HintPair
	textures [TextureCount]int
	result   *Result

	// player-2 fields carried through single-player records untouched
	absentScore int
	absentPos   Position
}

// HintPair is a highlighted linkable pair.
type HintPair struct {
	A    Position `json:"a"`
	B    Position `json:"b"`
	Path Path     `json:"path"`
}

// Option customizes a new Session.
type Option func(*Session)

// WithRand sets the random source used for dealing, reshuffles and spawns.
func WithRand(rng *rand.Rand) Option {
	return func(s *Session) { s.rng = rng }
}

// WithSeed seeds a deterministic random source.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// NewSession deals a fresh board and starts the clock and the spawner.
func NewSession(config *GameConfig, opts ...Option) (*Session, error) {
	if err := ValidateGameConfig(config); err != nil {
		return nil, err
	}
	s := &Session{
		config:    config,
		timers:    NewScheduler(),
		powerUps:  newPowerUpIndex(),
		timeLeft:  config.MaxTime,
		absentPos: NoPosition,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	s.grid = NewGrid(config.Rows, config.Cols)
	s.grid.Fill(s.rng, config.Forms)
	s.rules = NewRules(s.grid, config.Mode.Players(), config.MatchScore)
	perm := s.rng.Perm(MaxTextureID)
	for i := range s.textures {
		s.textures[i] = perm[i] + 1
	}

	s.armClocks()
	if config.SpawnOnStart {
		s.spawn()
	}
	s.checkMoves()
	return s, nil
}

func (s *Session) armClocks() {
	s.timers.Every(TimerKey{Kind: TimerClock}, time.Second, s.onClock)
	s.timers.Every(TimerKey{Kind: TimerSpawn}, seconds(s.config.SpawnInterval), s.spawn)
}

func (s *Session) onClock() {
	if s.timeLeft > 0 {
		s.timeLeft--
	}
	if s.timeLeft <= 0 {
		s.end(EndTimeUp)
	}
}

func (s *Session) end(reason EndReason) {
	if s.result != nil {
		return
	}
	s.result = s.rules.result(reason)
	s.hint = nil
	s.timers.Stop()
}

// checkMoves ends the session when no pair can be linked. It reports
// whether the session ended.
func (s *Session) checkMoves() bool {
	if s.result == nil && !s.rules.HasMoves() {
		s.end(EndNoMoves)
	}
	return s.result != nil
}

// Config returns the rules the session was created with.
func (s *Session) Config() *GameConfig { return s.config }

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.config.Mode }

// Over reports whether the session has finished.
func (s *Session) Over() bool { return s.result != nil }

// Result returns the final outcome, or nil while the session runs.
func (s *Session) Result() *Result { return s.result }

// Paused reports whether the clock is suspended.
func (s *Session) Paused() bool { return s.timers.Paused() }

// TimeLeft returns the remaining seconds.
func (s *Session) TimeLeft() int { return s.timeLeft }

// Tick advances every running countdown by one second.
func (s *Session) Tick() error {
	if s.result != nil {
		return ErrSessionOver
	}
	s.timers.Advance(time.Second)
	return nil
}

// Pause suspends the clock, the spawner and every effect at once. Pausing a
// paused session does nothing.
func (s *Session) Pause() error {
	if s.result != nil {
		return ErrSessionOver
	}
	s.timers.Pause()
	return nil
}

// Resume restarts the countdowns that were pending when the session paused.
func (s *Session) Resume() error {
	if s.result != nil {
		return ErrSessionOver
	}
	s.timers.Resume()
	return nil
}

// Shutdown cancels every timer. Later inputs fail with ErrSessionOver.
func (s *Session) Shutdown() {
	s.end(EndShutdown)
}

// inputGate rejects input for unknown players and for finished or paused
// sessions.
func (s *Session) inputGate(player int) (*Cursor, error) {
	if s.result != nil {
		return nil, ErrSessionOver
	}
	c, err := s.rules.Cursor(player)
	if err != nil {
		return nil, err
	}
	if s.timers.Paused() {
		return nil, ErrPaused
	}
	return c, nil
}

func (s *Session) frozen(player int) bool {
	return s.timers.Active(TimerKey{Kind: TimerFreeze, Player: player})
}

func (s *Session) inverted(player int) bool {
	return s.timers.Active(TimerKey{Kind: TimerInversion, Player: player})
}

func (s *Session) teleporting(player int) bool {
	return s.timers.Active(TimerKey{Kind: TimerTeleport, Player: player})
}

// Move steps a player's cursor by one cell. Moving onto a tile activates
// it; moving onto an empty cell collects any power-up there.
func (s *Session) Move(player, dx, dy int) (*ActionResult, error) {
	c, err := s.inputGate(player)
	if err != nil {
		return nil, err
	}
	if abs(dx)+abs(dy) != 1 {
		return nil, fmt.Errorf("%w: move (%d,%d) is not a single step", ErrInvalidPosition, dx, dy)
	}
	if s.frozen(player) {
		return &ActionResult{Player: player, Outcome: OutcomeFrozen, From: c.Pos, To: c.Pos}, nil
	}
	if s.inverted(player) {
		dx, dy = -dx, -dy
	}
	res, err := s.rules.Step(player, dx, dy)
	if err != nil {
		return nil, err
	}
	if res.Outcome == OutcomeMoved {
		s.collect(res)
	}
	s.afterAction(res)
	return res, nil
}

// Activate selects, deselects or matches the tile at pos.
func (s *Session) Activate(player int, pos Position) (*ActionResult, error) {
	c, err := s.inputGate(player)
	if err != nil {
		return nil, err
	}
	if !s.grid.InBounds(pos) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, pos)
	}
	if s.frozen(player) {
		return &ActionResult{Player: player, Outcome: OutcomeFrozen, From: c.Pos, To: c.Pos}, nil
	}
	res, err := s.rules.Activate(player, pos)
	if err != nil {
		return nil, err
	}
	s.afterAction(res)
	return res, nil
}

// Point spends a player's teleport on an absolute destination. An empty
// target is jumped to directly; an occupied one places the cursor on its
// first free neighbour and activates it.
func (s *Session) Point(player int, pos Position) (*ActionResult, error) {
	c, err := s.inputGate(player)
	if err != nil {
		return nil, err
	}
	if !s.grid.InBounds(pos) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, pos)
	}
	if !s.teleporting(player) {
		return nil, fmt.Errorf("%w: %d", ErrTeleportInactive, player)
	}
	if s.frozen(player) {
		return &ActionResult{Player: player, Outcome: OutcomeFrozen, From: c.Pos, To: c.Pos}, nil
	}

	if s.rules.heldByOther(c, pos) {
		return &ActionResult{Player: player, Outcome: OutcomeBlocked, From: c.Pos, To: c.Pos}, nil
	}
	landing, ok := s.rules.landingFor(c, pos)
	if !ok {
		return &ActionResult{Player: player, Outcome: OutcomeBlocked, From: c.Pos, To: c.Pos}, nil
	}
	s.timers.Cancel(TimerKey{Kind: TimerTeleport, Player: player})

	res := &ActionResult{Player: player, From: c.Pos, To: landing, Outcome: OutcomeMoved}
	c.Pos = landing
	if landing != pos {
		act, err := s.rules.Activate(player, pos)
		if err != nil {
			return nil, err
		}
		res.Outcome = act.Outcome
		res.Tiles = act.Tiles
		res.Path = act.Path
		res.ScoreDelta = act.ScoreDelta
	}
	s.collect(res)
	s.afterAction(res)
	return res, nil
}

func (s *Session) afterAction(res *ActionResult) {
	if res.Outcome == OutcomeMatched && s.result == nil {
		s.refreshHint()
		s.checkMoves()
	}
	res.GameOver = s.result != nil
}

// collect consumes the power-up under the cursor that just moved.
func (s *Session) collect(res *ActionResult) {
	p, ok := s.powerUps.take(s.grid.Index(res.To))
	if !ok {
		return
	}
	res.Collected = &p
	s.apply(p.Kind, res.Player)
}

func (s *Session) apply(kind PowerUpKind, collector int) {
	switch kind {
	case TimeBonus:
		s.timeLeft = min(s.timeLeft+s.config.TimeBonus, s.config.MaxTime)
	case Reshuffle:
		s.reshuffle()
	case Hint:
		s.showHint()
	case Teleport:
		s.timers.After(TimerKey{Kind: TimerTeleport, Player: collector}, s.config.EffectDuration(kind), func() {})
	case Freeze, Inversion:
		target := s.opponent(collector)
		if target == NoPlayer {
			return
		}
		tk, _ := effectTimer(kind)
		s.timers.After(TimerKey{Kind: tk, Player: target}, s.config.EffectDuration(kind), func() {})
	}
}

func (s *Session) opponent(player int) int {
	if s.rules.Players() < 2 {
		return NoPlayer
	}
	if player == Player1 {
		return Player2
	}
	return Player1
}

func (s *Session) reshuffle() {
	moved := s.grid.Reshuffle(s.rng)
	s.rules.Remap(moved)
	if s.hint != nil {
		if to, ok := moved[s.hint.A]; ok {
			s.hint.A = to
		}
		if to, ok := moved[s.hint.B]; ok {
			s.hint.B = to
		}
	}
	s.refreshHint()
	s.checkMoves()
}

func (s *Session) showHint() {
	s.hint = nil
	if a, b, path, ok := FindPair(s.grid); ok {
		s.hint = &HintPair{A: a, B: b, Path: path}
	}
	s.timers.After(TimerKey{Kind: TimerHint}, s.config.EffectDuration(Hint), func() { s.hint = nil })
}

// refreshHint keeps the highlighted pair valid, picking a new one when a
// match or reshuffle broke it.
func (s *Session) refreshHint() {
	if s.hint == nil {
		return
	}
	a, b := s.hint.A, s.hint.B
	if !s.grid.IsOpen(a) && !s.grid.IsOpen(b) && s.grid.Get(a).Form == s.grid.Get(b).Form {
		if path, ok := CanLink(s.grid, a, b); ok {
			s.hint.Path = path
			return
		}
	}
	s.hint = nil
	if a, b, path, ok := FindPair(s.grid); ok {
		s.hint = &HintPair{A: a, B: b, Path: path}
	}
}

// spawn drops one power-up on a random empty cell that has no cursor and
// no power-up. Nothing happens when no cell qualifies.
func (s *Session) spawn() {
	if len(s.config.PowerUps) == 0 {
		return
	}
	var candidates []Position
	for _, p := range s.grid.OpenCells() {
		if _, taken := s.powerUps.at(s.grid.Index(p)); taken {
			continue
		}
		if s.rules.standingOn(nil, p) != nil {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return
	}
	pos := candidates[s.rng.IntN(len(candidates))]
	kind := pickKind(s.rng, s.config.PowerUps)
	s.powerUps.place(s.grid.Index(pos), PowerUp{Kind: kind, Pos: pos})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
