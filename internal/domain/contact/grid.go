package contact

import (
	"math"
	"sort"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

// cellKey is the integer coordinate of a grid cell.
type cellKey struct{ x, y, z int64 }

func (c cellKey) less(o cellKey) bool {
	if c.x != o.x {
		return c.x < o.x
	}
	if c.y != o.y {
		return c.y < o.y
	}
	return c.z < o.z
}

// grid buckets atom indices into cubes of edge size. With size equal to the
// cutoff every in-range partner of an atom lies in the 27 cells around it.
type grid struct {
	size  float64
	cells map[cellKey][]int
	order []cellKey // ascending, for deterministic iteration
}

func newGrid(atoms []structure.Atom, size float64) *grid {
	g := &grid{size: size, cells: make(map[cellKey][]int)}
	for i := range atoms {
		k := g.keyOf(&atoms[i])
		g.cells[k] = append(g.cells[k], i)
	}
	g.order = make([]cellKey, 0, len(g.cells))
	for k := range g.cells {
		g.order = append(g.order, k)
	}
	sort.Slice(g.order, func(i, j int) bool { return g.order[i].less(g.order[j]) })
	return g
}

func (g *grid) keyOf(a *structure.Atom) cellKey {
	return cellKey{
		x: int64(math.Floor(a.X / g.size)),
		y: int64(math.Floor(a.Y / g.size)),
		z: int64(math.Floor(a.Z / g.size)),
	}
}

// neighbours calls fn with the bucket of every occupied cell in the 3×3×3
// block centred on c, stopping early when fn returns false.
func (g *grid) neighbours(c cellKey, fn func(bucket []int) bool) {
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for dz := int64(-1); dz <= 1; dz++ {
				if b, ok := g.cells[cellKey{c.x + dx, c.y + dy, c.z + dz}]; ok {
					if !fn(b) {
						return
					}
				}
			}
		}
	}
}
