package contact

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

// DefaultCutoff is the maximum centre-to-centre contact distance in Å.
const DefaultCutoff = 5.0

// MaxCutoff is the largest cutoff Detect accepts. Wider cutoffs put whole
// structures into a handful of grid cells.
const MaxCutoff = 50.0

// checkEvery is the number of distance evaluations between context checks.
const checkEvery = 1 << 12

// Options configures detection.
type Options struct {
	Cutoff     float64
	Workers    int
	BruteForce bool
}

// Option mutates Options.
type Option func(*Options)

// WithCutoff sets the contact cutoff in Å.
func WithCutoff(c float64) Option { return func(o *Options) { o.Cutoff = c } }

// WithWorkers sets the number of goroutines scanning grid cells. Values below 1
// mean one.
func WithWorkers(n int) Option { return func(o *Options) { o.Workers = n } }

// WithBruteForce switches to the all-pairs reference scan.
func WithBruteForce() Option { return func(o *Options) { o.BruteForce = true } }

func buildOptions(opts []Option) (Options, error) {
	o := Options{Cutoff: DefaultCutoff, Workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if !(o.Cutoff > 0) || math.IsInf(o.Cutoff, 0) {
		return o, fmt.Errorf("contact: cutoff must be a positive finite number, got %v", o.Cutoff)
	}
	if o.Cutoff > MaxCutoff {
		return o, fmt.Errorf("contact: cutoff %v exceeds the maximum of %v", o.Cutoff, MaxCutoff)
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	if limit := runtime.GOMAXPROCS(0) * 4; o.Workers > limit {
		o.Workers = limit
	}
	return o, nil
}

// Detect returns every pair of atoms whose distance is within the cutoff,
// classified and sorted by canonical pair key. Each unordered pair appears
// once; an atom is never paired with itself. atoms is not modified.
//
// The context is checked between grid cells and every few thousand distance
// evaluations inside a cell. A cancelled run returns nil and ctx.Err().
func Detect(ctx context.Context, atoms []structure.Atom, opts ...Option) ([]Interaction, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	atoms = usableAtoms(atoms)
	if o.BruteForce {
		return detectBruteForce(ctx, atoms, o.Cutoff)
	}
	return detectGrid(ctx, atoms, o)
}

// usableAtoms drops atoms with non-finite coordinates and later repeats of an
// atom key. The input is returned as is when nothing needs dropping, otherwise
// a filtered copy.
func usableAtoms(atoms []structure.Atom) []structure.Atom {
	seen := make(map[structure.AtomKey]struct{}, len(atoms))
	var keep []int
	for i := range atoms {
		a := &atoms[i]
		_, dup := seen[a.Key()]
		if dup || !finite(a.X) || !finite(a.Y) || !finite(a.Z) {
			if keep == nil {
				keep = make([]int, 0, len(atoms))
				for j := 0; j < i; j++ {
					keep = append(keep, j)
				}
			}
			continue
		}
		seen[a.Key()] = struct{}{}
		if keep != nil {
			keep = append(keep, i)
		}
	}
	if keep == nil {
		return atoms
	}
	out := make([]structure.Atom, len(keep))
	for n, i := range keep {
		out[n] = atoms[i]
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func detectGrid(ctx context.Context, atoms []structure.Atom, o Options) ([]Interaction, error) {
	if len(atoms) < 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []Interaction{}, nil
	}

	g := newGrid(atoms, o.Cutoff)
	cutoff2 := o.Cutoff * o.Cutoff
	workers := o.Workers
	if workers > len(g.order) {
		workers = len(g.order)
	}

	var next atomic.Int64
	partial := make([][]Interaction, workers)
	eg, egCtx := errgroup.WithContext(ctx)

	for w := 0; w < workers; w++ {
		w := w
		eg.Go(func() error {
			cp := checkpoint{ctx: egCtx}
			var local []Interaction
			for {
				idx := int(next.Add(1) - 1)
				if idx >= len(g.order) {
					break
				}
				if err := egCtx.Err(); err != nil {
					return err
				}
				cell := g.order[idx]
				var err error
				// Each pair is owned by its lower-keyed atom, so scanning every
				// cell once from every atom visits each pair exactly once.
				for _, i := range g.cells[cell] {
					ai := &atoms[i]
					ki := ai.Key()
					g.neighbours(cell, func(bucket []int) bool {
						for _, j := range bucket {
							if err = cp.tick(); err != nil {
								return false
							}
							aj := &atoms[j]
							if !ki.Less(aj.Key()) {
								continue
							}
							if d2 := distance2(ai, aj); d2 <= cutoff2 {
								local = append(local, newInteraction(ai, aj, math.Sqrt(d2)))
							}
						}
						return true
					})
					if err != nil {
						return err
					}
				}
			}
			partial[w] = local
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range partial {
		total += len(p)
	}
	out := make([]Interaction, 0, total)
	for _, p := range partial {
		out = append(out, p...)
	}
	sortInteractions(out)
	return out, nil
}

// checkpoint polls ctx once per checkEvery ticks.
type checkpoint struct {
	ctx context.Context
	n   int
}

func (c *checkpoint) tick() error {
	c.n++
	if c.n%checkEvery != 0 {
		return nil
	}
	return c.ctx.Err()
}

func distance2(a, b *structure.Atom) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}
