package engine

import (
	"fmt"
	"math/rand/v2"
)

// Grid is a rows x cols arena of tiles stored row-major. The outer Margin
// cells on every side are always empty.
type Grid struct {
	rows  int
	cols  int
	tiles []Tile
}

// NewGrid allocates an empty grid.
func NewGrid(rows, cols int) *Grid {
	g := &Grid{}
	g.Resize(rows, cols)
	return g
}

// Resize changes the dimensions and clears every cell, reusing the backing
// storage when it is large enough.
func (g *Grid) Resize(rows, cols int) {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("grid: invalid dimensions %dx%d", rows, cols))
	}
	n := rows * cols
	if cap(g.tiles) >= n {
		g.tiles = g.tiles[:n]
	} else {
		g.tiles = make([]Tile, n)
	}
	g.rows, g.cols = rows, cols
	g.Clear()
}

// Clear empties every cell.
func (g *Grid) Clear() {
	for i := range g.tiles {
		g.tiles[i] = EmptyTile
	}
}

// Rows returns the number of rows.
func (g *Grid) Rows() int { return g.rows }

// Cols returns the number of columns.
func (g *Grid) Cols() int { return g.cols }

// InBounds reports whether p lies inside the grid, margin included.
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.cols && p.Y >= 0 && p.Y < g.rows
}

// InPlayable reports whether p lies inside the playable region.
func (g *Grid) InPlayable(p Position) bool {
	return p.X >= Margin && p.X < g.cols-Margin && p.Y >= Margin && p.Y < g.rows-Margin
}

// Index returns the arena offset of p. It panics when p is out of range.
func (g *Grid) Index(p Position) int {
	if !g.InBounds(p) {
		panic(fmt.Sprintf("grid: position %v outside %dx%d", p, g.cols, g.rows))
	}
	return p.Y*g.cols + p.X
}

// PositionOf is the inverse of Index.
func (g *Grid) PositionOf(i int) Position {
	return Position{X: i % g.cols, Y: i / g.cols}
}

// Get returns the tile at p.
func (g *Grid) Get(p Position) Tile {
	return g.tiles[g.Index(p)]
}

// Set stores t at p. Setting an empty state clears the form.
func (g *Grid) Set(p Position, t Tile) {
	if t.State == Empty {
		t.Form = NoForm
	} else if t.Form == NoForm {
		panic(fmt.Sprintf("grid: occupied tile without form at %v", p))
	}
	g.tiles[g.Index(p)] = t
}

// SetState changes the state at p. Emptying a cell drops its form.
func (g *Grid) SetState(p Position, s TileState) {
	t := g.Get(p)
	t.State = s
	g.Set(p, t)
}

// SetForm changes the form at p, keeping its state.
func (g *Grid) SetForm(p Position, f Form) {
	i := g.Index(p)
	g.tiles[i].Form = f
}

// IsOpen reports whether p is empty.
func (g *Grid) IsOpen(p Position) bool {
	return g.Get(p).State == Empty
}

// Fill deals same-form horizontal pairs across the playable region and then
// shuffles them. The playable width must be even.
func (g *Grid) Fill(rng *rand.Rand, forms int) {
	g.Clear()
	for y := Margin; y < g.rows-Margin; y++ {
		for x := Margin; x+1 < g.cols-Margin; x += 2 {
			f := Form(rng.IntN(forms))
			g.Set(Position{X: x, Y: y}, Tile{Form: f, State: Inactive})
			g.Set(Position{X: x + 1, Y: y}, Tile{Form: f, State: Inactive})
		}
	}
	g.Reshuffle(rng)
}

// Reshuffle permutes the tiles on occupied cells with Fisher-Yates, leaving
// empty cells in place. It returns where each moved tile went, keyed by its
// old position.
func (g *Grid) Reshuffle(rng *rand.Rand) map[Position]Position {
	occupied := g.Occupied()
	perm := make([]int, len(occupied))
	for i := range perm {
		perm[i] = i
	}
	for i := len(perm) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}

	old := make([]Tile, len(occupied))
	for i, p := range occupied {
		old[i] = g.Get(p)
	}
	moved := make(map[Position]Position, len(occupied))
	for k, p := range occupied {
		g.tiles[g.Index(p)] = old[perm[k]]
		moved[occupied[perm[k]]] = p
	}
	return moved
}

// Occupied returns every non-empty position in row-major order.
func (g *Grid) Occupied() []Position {
	var out []Position
	for i, t := range g.tiles {
		if t.State != Empty {
			out = append(out, g.PositionOf(i))
		}
	}
	return out
}

// PlayableTiles returns the occupied cells of the playable region in
// row-major order.
func (g *Grid) PlayableTiles() []Position {
	var out []Position
	for y := Margin; y < g.rows-Margin; y++ {
		for x := Margin; x < g.cols-Margin; x++ {
			p := Position{X: x, Y: y}
			if !g.IsOpen(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// OpenCells returns every empty position in row-major order.
func (g *Grid) OpenCells() []Position {
	var out []Position
	for i, t := range g.tiles {
		if t.State == Empty {
			out = append(out, g.PositionOf(i))
		}
	}
	return out
}

// FormCounts counts the occupied cells of each form.
func (g *Grid) FormCounts() map[Form]int {
	counts := make(map[Form]int)
	for _, t := range g.tiles {
		if t.State != Empty {
			counts[t.Form]++
		}
	}
	return counts
}

// Remaining returns the number of occupied cells.
func (g *Grid) Remaining() int {
	n := 0
	for _, t := range g.tiles {
		if t.State != Empty {
			n++
		}
	}
	return n
}

// Rows2D copies the grid into a [row][col] slice.
func (g *Grid) Rows2D() [][]Tile {
	out := make([][]Tile, g.rows)
	for y := range out {
		row := make([]Tile, g.cols)
		copy(row, g.tiles[y*g.cols:(y+1)*g.cols])
		out[y] = row
	}
	return out
}

// Clone returns an independent copy.
func (g *Grid) Clone() *Grid {
	c := &Grid{rows: g.rows, cols: g.cols, tiles: make([]Tile, len(g.tiles))}
	copy(c.tiles, g.tiles)
	return c
}
