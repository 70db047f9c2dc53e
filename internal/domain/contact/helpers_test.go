package contact

import (
	"math/rand"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

func mkAtom(label, chain string, serial int, res string, seq int, name, elem string, x, y, z float64) structure.Atom {
	return structure.Atom{
		Structure: label, Chain: chain, Serial: serial, ResName: res, ResSeq: seq,
		Name: name, Element: elem, X: x, Y: y, Z: z, Occupancy: 1,
	}
}

var (
	residueNames = []string{"ALA", "ARG", "ASP", "GLU", "LYS", "LEU", "SER", "PHE", "HOH", "UNK"}
	elementNames = []string{"C", "N", "O", "S", "ZN", ""}
)

// randomStructures builds n atoms spread over a few structures and chains in a
// box of the given edge.
func randomStructures(rng *rand.Rand, n int, edge float64) []*structure.Structure {
	labels := []string{"1ABC", "2XYZ", "model"}
	chains := []string{"A", "B", "C"}
	set := make([]*structure.Structure, len(labels))
	for i, l := range labels {
		set[i] = &structure.Structure{Label: l}
	}
	for i := 0; i < n; i++ {
		s := set[rng.Intn(len(set))]
		seq := rng.Intn(40) + 1
		s.Atoms = append(s.Atoms, mkAtom(s.Label, chains[rng.Intn(len(chains))], len(s.Atoms)+1,
			residueNames[seq%len(residueNames)], seq, "X", elementNames[rng.Intn(len(elementNames))],
			rng.Float64()*edge-edge/2, rng.Float64()*edge-edge/2, rng.Float64()*edge-edge/2))
	}
	return set
}

func flatten(set []*structure.Structure) []structure.Atom {
	var out []structure.Atom
	for _, s := range set {
		out = append(out, s.Atoms...)
	}
	return out
}
