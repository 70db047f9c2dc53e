package contact

import (
	"context"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

// Analyze runs detection and aggregation over labelled structures and returns
// a newly built result. Callers validate labels and reject empty structures
// beforehand; the inputs are never modified.
//
// Detection may run in parallel (WithWorkers); aggregation runs over the
// sorted interaction list, so the result does not depend on worker count or
// input atom order. A cancelled run returns nil and ctx.Err().
func Analyze(ctx context.Context, structures []*structure.Structure, opts ...Option) (*AnalysisResult, error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}

	n := 0
	for _, s := range structures {
		n += len(s.Atoms)
	}
	atoms := make([]structure.Atom, 0, n)
	for _, s := range structures {
		for _, a := range s.Atoms {
			a.Structure = s.Label
			atoms = append(atoms, a)
		}
	}
	atoms = usableAtoms(atoms)

	var interactions []Interaction
	if o.BruteForce {
		interactions, err = detectBruteForce(ctx, atoms, o.Cutoff)
	} else {
		interactions, err = detectGrid(ctx, atoms, o)
	}
	if err != nil {
		return nil, err
	}

	acc := NewAccumulator(atoms, o.Cutoff)
	for i, it := range interactions {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		acc.Add(it)
	}
	return acc.Finalize(), nil
}
