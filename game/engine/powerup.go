package engine

import (
	"math/rand/v2"
	"sort"

	"github.com/kamstrup/intmap"
)

// PowerUp is a collectible lying on an empty cell.
type PowerUp struct {
	Kind     PowerUpKind `json:"kind"`
	Pos      Position    `json:"pos"`
	Consumed bool        `json:"consumed,omitempty"`
}

// PowerUpWeight is one row of a spawn table.
type PowerUpWeight struct {
	Kind   PowerUpKind `json:"kind"`
	Weight int         `json:"weight"`
}

// DefaultPowerUps returns the equal-weight spawn table of a mode.
func DefaultPowerUps(m Mode) []PowerUpWeight {
	kinds := []PowerUpKind{TimeBonus, Reshuffle, Hint, Teleport}
	if m == ModeDuo {
		kinds = []PowerUpKind{TimeBonus, Reshuffle, Hint, Freeze, Inversion}
	}
	table := make([]PowerUpWeight, len(kinds))
	for i, k := range kinds {
		table[i] = PowerUpWeight{Kind: k, Weight: 1}
	}
	return table
}

// pickKind draws a kind from a weighted table.
func pickKind(rng *rand.Rand, table []PowerUpWeight) PowerUpKind {
	total := 0
	for _, w := range table {
		total += w.Weight
	}
	n := rng.IntN(total)
	for _, w := range table {
		if n < w.Weight {
			return w.Kind
		}
		n -= w.Weight
	}
	return table[len(table)-1].Kind
}

// powerUpIndex holds the unconsumed power-ups keyed by grid cell index.
type powerUpIndex struct {
	cells *intmap.Map[int, PowerUp]
}

func newPowerUpIndex() *powerUpIndex {
	return &powerUpIndex{cells: intmap.New[int, PowerUp](16)}
}

func (x *powerUpIndex) at(cell int) (PowerUp, bool) {
	return x.cells.Get(cell)
}

func (x *powerUpIndex) place(cell int, p PowerUp) {
	x.cells.Put(cell, p)
}

// take removes and returns the power-up on cell, marked consumed.
func (x *powerUpIndex) take(cell int) (PowerUp, bool) {
	p, ok := x.cells.Get(cell)
	if !ok {
		return PowerUp{}, false
	}
	x.cells.Del(cell)
	p.Consumed = true
	return p, true
}

func (x *powerUpIndex) len() int {
	return x.cells.Len()
}

func (x *powerUpIndex) clear() {
	x.cells.Clear()
}

// list returns the power-ups ordered by cell index.
func (x *powerUpIndex) list() []PowerUp {
	type entry struct {
		cell int
		p    PowerUp
	}
	entries := make([]entry, 0, x.cells.Len())
	x.cells.ForEach(func(cell int, p PowerUp) bool {
		entries = append(entries, entry{cell, p})
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].cell < entries[j].cell })
	out := make([]PowerUp, len(entries))
	for i, e := range entries {
		out[i] = e.p
	}
	return out
}
