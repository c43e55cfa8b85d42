package engine

import "fmt"

// Cursor is a player's position and pending selection.
type Cursor struct {
	ID       int
	Pos      Position
	Selected *Position
}

// Rules applies selection, matching and movement for every cursor on one
// shared grid. Single and two-player sessions differ only in cursor count.
type Rules struct {
	grid       *Grid
	cursors    []*Cursor
	scores     []int
	matchScore int
	lastPath   Path
}

// NewRules places the cursors at their starting corners: player 1 at the
// top-left cell, player 2 at the bottom-right.
func NewRules(g *Grid, players, matchScore int) *Rules {
	r := &Rules{
		grid:       g,
		cursors:    make([]*Cursor, players),
		scores:     make([]int, players),
		matchScore: matchScore,
	}
	for i := range r.cursors {
		r.cursors[i] = &Cursor{ID: i + 1, Pos: startPosition(g, i+1)}
	}
	return r
}

func startPosition(g *Grid, player int) Position {
	if player == Player2 {
		return Position{X: g.Cols() - 1, Y: g.Rows() - 1}
	}
	return Position{X: 0, Y: 0}
}

// Cursor returns the cursor of a player.
func (r *Rules) Cursor(player int) (*Cursor, error) {
	if player < 1 || player > len(r.cursors) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPlayer, player)
	}
	return r.cursors[player-1], nil
}

// Players returns the number of cursors.
func (r *Rules) Players() int { return len(r.cursors) }

// Score returns a player's score.
func (r *Rules) Score(player int) int { return r.scores[player-1] }

// LastPath returns the path of the most recent match.
func (r *Rules) LastPath() Path { return r.lastPath }

// heldByOther reports whether pos is the selection of a cursor other than c.
func (r *Rules) heldByOther(c *Cursor, pos Position) bool {
	for _, o := range r.cursors {
		if o != c && o.Selected != nil && *o.Selected == pos {
			return true
		}
	}
	return false
}

// standingOn returns the cursor on pos other than c, if any.
func (r *Rules) standingOn(c *Cursor, pos Position) *Cursor {
	for _, o := range r.cursors {
		if o != c && o.Pos == pos {
			return o
		}
	}
	return nil
}

// Activate runs one transition of the selection state machine for player
// on the tile at pos.
func (r *Rules) Activate(player int, pos Position) (*ActionResult, error) {
	c, err := r.Cursor(player)
	if err != nil {
		return nil, err
	}
	if !r.grid.InBounds(pos) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPosition, pos)
	}
	res := &ActionResult{Player: player, From: c.Pos, To: c.Pos}
	tile := r.grid.Get(pos)

	switch {
	case tile.State == Empty:
		res.Outcome = OutcomeIgnored
	case r.heldByOther(c, pos):
		res.Outcome = OutcomeBlocked
	case c.Selected == nil:
		r.grid.SetState(pos, Active)
		sel := pos
		c.Selected = &sel
		res.Outcome = OutcomeSelected
		res.Tiles = []Position{pos}
	case *c.Selected == pos:
		r.grid.SetState(pos, Inactive)
		c.Selected = nil
		res.Outcome = OutcomeDeselected
		res.Tiles = []Position{pos}
	default:
		first := *c.Selected
		c.Selected = nil
		res.Tiles = []Position{first, pos}
		if path, ok := r.matches(first, pos); ok {
			r.grid.SetState(first, Empty)
			r.grid.SetState(pos, Empty)
			r.scores[player-1] += r.matchScore
			r.lastPath = path
			res.Outcome = OutcomeMatched
			res.Path = path
			res.ScoreDelta = r.matchScore
		} else {
			r.grid.SetState(first, Inactive)
			r.grid.SetState(pos, Inactive)
			res.Outcome = OutcomeMismatched
		}
	}
	return res, nil
}

func (r *Rules) matches(a, b Position) (Path, bool) {
	if r.grid.Get(a).Form != r.grid.Get(b).Form {
		return nil, false
	}
	return CanLink(r.grid, a, b)
}

// Step moves player by one already-adjusted offset. An occupied target is
// activated instead; a target outside the grid or under the other cursor
// blocks the move.
func (r *Rules) Step(player, dx, dy int) (*ActionResult, error) {
	c, err := r.Cursor(player)
	if err != nil {
		return nil, err
	}
	dest := c.Pos.Add(dx, dy)
	if !r.grid.InBounds(dest) {
		return &ActionResult{Player: player, Outcome: OutcomeBlocked, From: c.Pos, To: c.Pos}, nil
	}
	if !r.grid.IsOpen(dest) {
		return r.Activate(player, dest)
	}
	return r.relocate(c, dest), nil
}

// relocate moves c onto the empty cell dest unless another cursor is there.
func (r *Rules) relocate(c *Cursor, dest Position) *ActionResult {
	res := &ActionResult{Player: c.ID, From: c.Pos, To: c.Pos}
	if r.standingOn(c, dest) != nil {
		res.Outcome = OutcomeBlocked
		return res
	}
	c.Pos = dest
	res.To = dest
	res.Outcome = OutcomeMoved
	return res
}

// landingFor returns where a teleport aimed at target puts the cursor: the
// target itself when empty, else its first free neighbour probing up, down,
// left, right.
func (r *Rules) landingFor(c *Cursor, target Position) (Position, bool) {
	free := func(p Position) bool {
		return r.grid.InBounds(p) && r.grid.IsOpen(p) && r.standingOn(c, p) == nil
	}
	if r.grid.IsOpen(target) {
		return target, free(target)
	}
	for _, d := range neighbours {
		if p := target.Add(d[0], d[1]); free(p) {
			return p, true
		}
	}
	return Position{}, false
}

// HasMoves reports whether any same-form pair in the playable region links.
func (r *Rules) HasMoves() bool {
	_, _, _, ok := FindPair(r.grid)
	return ok
}

// Remap moves selections along with their tiles after a reshuffle.
func (r *Rules) Remap(moved map[Position]Position) {
	for _, c := range r.cursors {
		if c.Selected == nil {
			continue
		}
		if to, ok := moved[*c.Selected]; ok {
			sel := to
			c.Selected = &sel
		}
	}
}

// result builds the final outcome: the higher score wins in two-player
// sessions and equal scores draw.
func (r *Rules) result(reason EndReason) *Result {
	res := &Result{Reason: reason, Scores: append([]int(nil), r.scores...)}
	if len(r.scores) == 2 {
		switch {
		case r.scores[0] > r.scores[1]:
			res.Winner = Player1
		case r.scores[1] > r.scores[0]:
			res.Winner = Player2
		default:
			res.Draw = true
		}
	}
	return res
}
