package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// Record is the persisted form of a session. In single-player records the
// player-2 score and position are carried through unchanged.
type Record struct {
	Mode     Mode
	TimeLeft int
	Scores   [MaxPlayers]int
	Players  [MaxPlayers]Position
	Rows     int
	Cols     int
	Textures [TextureCount]int
	Forms    [][]Form
	States   [][]TileState
	PowerUps []RecordPowerUp
}

// RecordPowerUp is one unconsumed power-up line.
type RecordPowerUp struct {
	Pos  Position
	Kind PowerUpKind
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedRecord, fmt.Sprintf(format, args...))
}

// Validate checks the structure of a record: dimensions, matrix shapes,
// value ranges and bounds.
func (r *Record) Validate() error {
	if !r.Mode.Valid() {
		return malformed("unknown mode %q", r.Mode)
	}
	if r.TimeLeft < 0 {
		return malformed("negative time %d", r.TimeLeft)
	}
	if r.Rows < MinGridSize || r.Rows > MaxGridSize || r.Cols < MinGridSize || r.Cols > MaxGridSize {
		return malformed("dimensions %dx%d out of range", r.Rows, r.Cols)
	}
	inBounds := func(p Position) bool {
		return p.X >= 0 && p.X < r.Cols && p.Y >= 0 && p.Y < r.Rows
	}
	for i := 0; i < r.Mode.Players(); i++ {
		if !inBounds(r.Players[i]) {
			return malformed("player %d at %v outside grid", i+1, r.Players[i])
		}
	}
	if len(r.Forms) != r.Rows || len(r.States) != r.Rows {
		return malformed("expected %d tile rows", r.Rows)
	}
	for y := 0; y < r.Rows; y++ {
		if len(r.Forms[y]) != r.Cols || len(r.States[y]) != r.Cols {
			return malformed("tile row %d must have %d columns", y, r.Cols)
		}
		for x := 0; x < r.Cols; x++ {
			f, st := r.Forms[y][x], r.States[y][x]
			if st < Empty || st > Active {
				return malformed("state %d at (%d,%d)", st, x, y)
			}
			if f < NoForm {
				return malformed("form %d at (%d,%d)", f, x, y)
			}
			if st != Empty && f == NoForm {
				return malformed("occupied cell (%d,%d) has no form", x, y)
			}
		}
	}
	if len(r.PowerUps) > r.Rows*r.Cols {
		return malformed("%d power-ups on a %dx%d grid", len(r.PowerUps), r.Rows, r.Cols)
	}
	for _, p := range r.PowerUps {
		if !inBounds(p.Pos) {
			return malformed("power-up at %v outside grid", p.Pos)
		}
		if !p.Kind.Valid() {
			return malformed("power-up kind %d", int(p.Kind))
		}
	}
	return nil
}

// EncodeRecord writes rec in the line format.
func EncodeRecord(w io.Writer, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, rec.Mode)
	fmt.Fprintln(bw, rec.TimeLeft)
	fmt.Fprintln(bw, rec.Scores[0], rec.Scores[1])
	fmt.Fprintln(bw, rec.Players[0].X, rec.Players[0].Y)
	fmt.Fprintln(bw, rec.Players[1].X, rec.Players[1].Y)
	fmt.Fprintln(bw, rec.Rows, rec.Cols)
	fmt.Fprintln(bw, rec.Textures[0], rec.Textures[1], rec.Textures[2])
	for y := 0; y < rec.Rows; y++ {
		for x := 0; x < rec.Cols; x++ {
			f := rec.Forms[y][x]
			if rec.States[y][x] == Empty {
				f = NoForm
			}
			writeField(bw, x, int(f))
		}
		bw.WriteByte('\n')
	}
	for y := 0; y < rec.Rows; y++ {
		for x := 0; x < rec.Cols; x++ {
			writeField(bw, x, int(rec.States[y][x]))
		}
		bw.WriteByte('\n')
	}
	fmt.Fprintln(bw, len(rec.PowerUps))
	for _, p := range rec.PowerUps {
		fmt.Fprintln(bw, p.Pos.X, p.Pos.Y, int(p.Kind))
	}
	return bw.Flush()
}

func writeField(w *bufio.Writer, col, v int) {
	if col > 0 {
		w.WriteByte(' ')
	}
	w.WriteString(strconv.Itoa(v))
}

// tokenReader yields whitespace-separated fields.
type tokenReader struct {
	sc *bufio.Scanner
}

func (t *tokenReader) next(field string) (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", err
		}
		return "", malformed("missing %s", field)
	}
	return t.sc.Text(), nil
}

func (t *tokenReader) int(field string) (int, error) {
	tok, err := t.next(field)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, malformed("%s: %q is not an integer", field, tok)
	}
	return v, nil
}

func (t *tokenReader) ints(field string, dst ...*int) error {
	for _, d := range dst {
		v, err := t.int(field)
		if err != nil {
			return err
		}
		*d = v
	}
	return nil
}

// DecodeRecord parses and validates a record. Empty cells stored with a
// form are read as empty.
func DecodeRecord(r io.Reader) (*Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)
	t := &tokenReader{sc: sc}

	rec := &Record{}
	mode, err := t.next("mode")
	if err != nil {
		return nil, err
	}
	rec.Mode = Mode(mode)
	if !rec.Mode.Valid() {
		return nil, malformed("unknown mode %q", mode)
	}
	if err := t.ints("header",
		&rec.TimeLeft,
		&rec.Scores[0], &rec.Scores[1],
		&rec.Players[0].X, &rec.Players[0].Y,
		&rec.Players[1].X, &rec.Players[1].Y,
		&rec.Rows, &rec.Cols,
		&rec.Textures[0], &rec.Textures[1], &rec.Textures[2],
	); err != nil {
		return nil, err
	}
	if rec.Rows < MinGridSize || rec.Rows > MaxGridSize || rec.Cols < MinGridSize || rec.Cols > MaxGridSize {
		return nil, malformed("dimensions %dx%d out of range", rec.Rows, rec.Cols)
	}

	rec.Forms = make([][]Form, rec.Rows)
	for y := range rec.Forms {
		rec.Forms[y] = make([]Form, rec.Cols)
		for x := range rec.Forms[y] {
			v, err := t.int("form")
			if err != nil {
				return nil, err
			}
			rec.Forms[y][x] = Form(v)
		}
	}
	rec.States = make([][]TileState, rec.Rows)
	for y := range rec.States {
		rec.States[y] = make([]TileState, rec.Cols)
		for x := range rec.States[y] {
			v, err := t.int("state")
			if err != nil {
				return nil, err
			}
			rec.States[y][x] = TileState(v)
			if rec.States[y][x] == Empty && rec.Forms[y][x] >= 0 {
				rec.Forms[y][x] = NoForm
			}
		}
	}

	count, err := t.int("power-up count")
	if err != nil {
		return nil, err
	}
	if count < 0 || count > rec.Rows*rec.Cols {
		return nil, malformed("power-up count %d", count)
	}
	if count > 0 {
		rec.PowerUps = make([]RecordPowerUp, count)
	}
	for i := range rec.PowerUps {
		var kind int
		p := &rec.PowerUps[i]
		if err := t.ints("power-up", &p.Pos.X, &p.Pos.Y, &kind); err != nil {
			return nil, err
		}
		p.Kind = PowerUpKind(kind)
	}
	if sc.Scan() {
		return nil, malformed("trailing data %q", sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarshalText encodes the record in the line format.
func (r *Record) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeRecord(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalText decodes the line format into r.
func (r *Record) UnmarshalText(text []byte) error {
	rec, err := DecodeRecord(bytes.NewReader(text))
	if err != nil {
		return err
	}
	*r = *rec
	return nil
}

// Grid rebuilds the tile matrix of the record.
func (r *Record) Grid() *Grid {
	g := NewGrid(r.Rows, r.Cols)
	for y := 0; y < r.Rows; y++ {
		for x := 0; x < r.Cols; x++ {
			g.Set(Position{X: x, Y: y}, Tile{Form: r.Forms[y][x], State: r.States[y][x]})
		}
	}
	return g
}

// Save captures the session as a record. The session must be paused.
func (s *Session) Save() (*Record, error) {
	if s.result != nil {
		return nil, ErrSessionOver
	}
	if !s.timers.Paused() {
		return nil, ErrNotPaused
	}
	rec := &Record{
		Mode:     s.config.Mode,
		TimeLeft: s.timeLeft,
		Rows:     s.grid.Rows(),
		Cols:     s.grid.Cols(),
		Textures: s.textures,
		Forms:    make([][]Form, s.grid.Rows()),
		States:   make([][]TileState, s.grid.Rows()),
	}
	rec.Scores[1], rec.Players[1] = s.absentScore, s.absentPos
	for i, c := range s.rules.cursors {
		rec.Scores[i] = s.rules.scores[i]
		rec.Players[i] = c.Pos
	}
	for y := 0; y < rec.Rows; y++ {
		rec.Forms[y] = make([]Form, rec.Cols)
		rec.States[y] = make([]TileState, rec.Cols)
		for x := 0; x < rec.Cols; x++ {
			t := s.grid.Get(Position{X: x, Y: y})
			rec.Forms[y][x] = t.Form
			rec.States[y][x] = t.State
		}
	}
	for _, p := range s.powerUps.list() {
		rec.PowerUps = append(rec.PowerUps, RecordPowerUp{Pos: p.Pos, Kind: p.Kind})
	}
	return rec, nil
}

// Load replaces the session state with rec. The session must be paused and
// stays paused. Nothing changes unless the whole record is valid. Running
// effects are dropped; the clock and spawner restart from rec.
func (s *Session) Load(rec *Record) error {
	if s.result != nil {
		return ErrSessionOver
	}
	if !s.timers.Paused() {
		return ErrNotPaused
	}
	if rec == nil {
		return malformed("nil record")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Mode != s.config.Mode {
		return fmt.Errorf("%w: session is %s, record is %s", ErrModeMismatch, s.config.Mode, rec.Mode)
	}
	selections, err := s.checkRecord(rec)
	if err != nil {
		return err
	}

	if s.grid.Rows() != rec.Rows || s.grid.Cols() != rec.Cols {
		s.grid.Resize(rec.Rows, rec.Cols)
	}
	for y := 0; y < rec.Rows; y++ {
		for x := 0; x < rec.Cols; x++ {
			s.grid.Set(Position{X: x, Y: y}, Tile{Form: rec.Forms[y][x], State: rec.States[y][x]})
		}
	}

	s.rules = NewRules(s.grid, s.config.Mode.Players(), s.config.MatchScore)
	for i, c := range s.rules.cursors {
		c.Pos = rec.Players[i]
		s.rules.scores[i] = rec.Scores[i]
		if i < len(selections) {
			sel := selections[i]
			c.Selected = &sel
		}
	}
	if s.config.Mode == ModeSingle {
		s.absentScore, s.absentPos = rec.Scores[1], rec.Players[1]
	}

	s.powerUps.clear()
	for _, p := range rec.PowerUps {
		s.powerUps.place(s.grid.Index(p.Pos), PowerUp{Kind: p.Kind, Pos: p.Pos})
	}
	s.timeLeft = rec.TimeLeft
	s.textures = rec.Textures
	s.hint = nil
	for _, k := range []TimerKind{TimerHint, TimerTeleport, TimerFreeze, TimerInversion} {
		s.timers.CancelKind(k)
	}
	s.armClocks()
	s.checkMoves()
	return nil
}

// checkRecord verifies that rec describes a reachable state of this
// session and returns the selections in row-major order.
func (s *Session) checkRecord(rec *Record) ([]Position, error) {
	players := s.config.Mode.Players()
	occupied := func(p Position) bool { return rec.States[p.Y][p.X] != Empty }
	playable := func(p Position) bool {
		return p.X >= Margin && p.X < rec.Cols-Margin && p.Y >= Margin && p.Y < rec.Rows-Margin
	}

	var selections []Position
	for y := 0; y < rec.Rows; y++ {
		for x := 0; x < rec.Cols; x++ {
			p := Position{X: x, Y: y}
			if !occupied(p) {
				continue
			}
			if !playable(p) {
				return nil, malformed("tile in margin at %v", p)
			}
			if int(rec.Forms[y][x]) >= s.config.Forms {
				return nil, malformed("form %d at %v, session has %d", rec.Forms[y][x], p, s.config.Forms)
			}
			if rec.States[y][x] == Active {
				selections = append(selections, p)
			}
		}
	}
	if len(selections) > players {
		return nil, malformed("%d active tiles for %d players", len(selections), players)
	}

	for i := 0; i < players; i++ {
		if occupied(rec.Players[i]) {
			return nil, malformed("player %d stands on a tile at %v", i+1, rec.Players[i])
		}
	}
	if players == 2 && rec.Players[0] == rec.Players[1] {
		return nil, malformed("players share cell %v", rec.Players[0])
	}

	seen := make(map[Position]bool, len(rec.PowerUps))
	for _, p := range rec.PowerUps {
		if occupied(p.Pos) {
			return nil, malformed("power-up on tile at %v", p.Pos)
		}
		for i := 0; i < players; i++ {
			if rec.Players[i] == p.Pos {
				return nil, malformed("power-up under player %d at %v", i+1, p.Pos)
			}
		}
		if seen[p.Pos] {
			return nil, malformed("two power-ups at %v", p.Pos)
		}
		if p.Kind.targetsOpponent() && players < 2 {
			return nil, malformed("power-up %s in a single-player record", p.Kind)
		}
		seen[p.Pos] = true
	}
	return selections, nil
}
