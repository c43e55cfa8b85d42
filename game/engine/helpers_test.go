package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig is an 8x8 board (4x4 playable) with no power-up on start.
func testConfig(mode Mode) *GameConfig {
	cfg := DefaultConfig(mode)
	cfg.Rows, cfg.Cols = 8, 8
	cfg.SpawnOnStart = false
	return cfg
}

func newTestSession(t *testing.T, mode Mode, board ...string) *Session {
	t.Helper()
	s, err := NewSession(testConfig(mode), WithSeed(7))
	require.NoError(t, err)
	if len(board) > 0 {
		setBoard(t, s.grid, board...)
	}
	return s
}

// setBoard writes a layout where '.' is empty and digits are inactive forms.
func setBoard(t *testing.T, g *Grid, board ...string) {
	t.Helper()
	require.Len(t, board, g.Rows())
	for y, row := range board {
		require.Len(t, row, g.Cols())
		for x, ch := range row {
			p := Position{X: x, Y: y}
			switch {
			case ch == '.':
				g.Set(p, EmptyTile)
			case ch >= '0' && ch <= '9':
				g.Set(p, Tile{Form: Form(ch - '0'), State: Inactive})
			default:
				t.Fatalf("bad board character %q at %v", ch, p)
			}
		}
	}
}

func pos(x, y int) Position { return Position{X: x, Y: y} }

// assertPathValid checks that consecutive points of a path are joined by
// clear straight segments.
func assertPathValid(t *testing.T, g *Grid, path Path) {
	t.Helper()
	require.GreaterOrEqual(t, len(path), 2)
	require.LessOrEqual(t, len(path), 4)
	for i := 1; i < len(path); i++ {
		a, b := path[i-1], path[i]
		require.True(t, a.X == b.X || a.Y == b.Y, "segment %v-%v is not straight", a, b)
		require.True(t, lineClear(g, a, b), "segment %v-%v is blocked", a, b)
		if i < len(path)-1 {
			require.True(t, g.IsOpen(b), "corner %v is not open", b)
		}
	}
}
