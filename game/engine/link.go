package engine

// Path is the polyline of a link: the two endpoints with up to two corner
// points between them.
type Path []Position

// CanLink reports whether a and b connect through open cells with at most
// two bends. Tiers are tried in order: straight line, one corner, two
// corners. The grid is not modified.
func CanLink(g *Grid, a, b Position) (Path, bool) {
	if a == b || !g.InBounds(a) || !g.InBounds(b) {
		return nil, false
	}
	if lineClear(g, a, b) {
		return Path{a, b}, true
	}
	if c, ok := oneCorner(g, a, b); ok {
		return Path{a, c, b}, true
	}
	if c1, c2, ok := twoCorners(g, a, b); ok {
		return compact(Path{a, c1, c2, b}), true
	}
	return nil, false
}

// lineClear reports whether a and b share a row or column with only open
// cells strictly between them. Adjacent cells are always clear.
func lineClear(g *Grid, a, b Position) bool {
	switch {
	case a.X == b.X:
		lo, hi := minmax(a.Y, b.Y)
		for y := lo + 1; y < hi; y++ {
			if !g.IsOpen(Position{X: a.X, Y: y}) {
				return false
			}
		}
		return true
	case a.Y == b.Y:
		lo, hi := minmax(a.X, b.X)
		for x := lo + 1; x < hi; x++ {
			if !g.IsOpen(Position{X: x, Y: a.Y}) {
				return false
			}
		}
		return true
	}
	return false
}

func oneCorner(g *Grid, a, b Position) (Position, bool) {
	for _, c := range [2]Position{{X: a.X, Y: b.Y}, {X: b.X, Y: a.Y}} {
		if g.IsOpen(c) && lineClear(g, a, c) && lineClear(g, c, b) {
			return c, true
		}
	}
	return Position{}, false
}

// twoCorners sweeps every row, then every column, of the whole grid for a
// pair of open corners joining a and b.
func twoCorners(g *Grid, a, b Position) (Position, Position, bool) {
	for y := 0; y < g.rows; y++ {
		if y == a.Y || y == b.Y {
			continue
		}
		c1, c2 := Position{X: a.X, Y: y}, Position{X: b.X, Y: y}
		if g.IsOpen(c1) && g.IsOpen(c2) &&
			lineClear(g, a, c1) && lineClear(g, c1, c2) && lineClear(g, c2, b) {
			return c1, c2, true
		}
	}
	for x := 0; x < g.cols; x++ {
		if x == a.X || x == b.X {
			continue
		}
		c1, c2 := Position{X: x, Y: a.Y}, Position{X: x, Y: b.Y}
		if g.IsOpen(c1) && g.IsOpen(c2) &&
			lineClear(g, a, c1) && lineClear(g, c1, c2) && lineClear(g, c2, b) {
			return c1, c2, true
		}
	}
	return Position{}, Position{}, false
}

// compact drops repeated consecutive points, which appear when both corners
// of a sweep fall on the same cell.
func compact(p Path) Path {
	out := p[:1]
	for _, q := range p[1:] {
		if q != out[len(out)-1] {
			out = append(out, q)
		}
	}
	return out
}

// FindPair returns the first linkable same-form pair of the playable region
// in row-major order.
func FindPair(g *Grid) (Position, Position, Path, bool) {
	cells := g.PlayableTiles()
	for i, a := range cells {
		fa := g.Get(a).Form
		for _, b := range cells[i+1:] {
			if g.Get(b).Form != fa {
				continue
			}
			if path, ok := CanLink(g, a, b); ok {
				return a, b, path, true
			}
		}
	}
	return Position{}, Position{}, nil, false
}

// CountPairs counts every linkable same-form pair of the playable region.
func CountPairs(g *Grid) int {
	cells := g.PlayableTiles()
	n := 0
	for i, a := range cells {
		for _, b := range cells[i+1:] {
			if g.Get(a).Form != g.Get(b).Form {
				continue
			}
			if _, ok := CanLink(g, a, b); ok {
				n++
			}
		}
	}
	return n
}

func minmax(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}
