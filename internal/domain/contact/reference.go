package contact

import (
	"context"
	"math"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

// DetectBruteForce is Detect with the all-pairs scan forced on. It is meant
// for small inputs and for checking the grid scan.
func DetectBruteForce(ctx context.Context, atoms []structure.Atom, opts ...Option) ([]Interaction, error) {
	return Detect(ctx, atoms, append(opts, WithBruteForce())...)
}

// detectBruteForce compares every pair directly. It is quadratic and serves as
// the correctness reference for the grid scan.
func detectBruteForce(ctx context.Context, atoms []structure.Atom, cutoff float64) ([]Interaction, error) {
	cutoff2 := cutoff * cutoff
	cp := checkpoint{ctx: ctx}
	out := []Interaction{}
	for i := range atoms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := i + 1; j < len(atoms); j++ {
			if err := cp.tick(); err != nil {
				return nil, err
			}
			lo, hi := &atoms[i], &atoms[j]
			if lo.Key() == hi.Key() {
				continue
			}
			if hi.Key().Less(lo.Key()) {
				lo, hi = hi, lo
			}
			if d2 := distance2(lo, hi); d2 <= cutoff2 {
				out = append(out, newInteraction(lo, hi, math.Sqrt(d2)))
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sortInteractions(out)
	return out, nil
}
