package contact

import (
	"sort"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

type chainState struct {
	residues map[int]struct{}
	atoms    int
	touched  map[int]struct{}
	intra    int
	inter    int
	resNames map[int]string
	iface    map[int]*residueState
}

type residueState struct {
	resName    string
	categories map[Category]struct{}
	intra      int
	inter      int
}

type pairState struct {
	intra int
	inter int
}

// Accumulator folds interactions into per-chain, per-residue and per-chain-pair
// tallies. It has no read accessors: counts become visible only through the
// AnalysisResult returned by Finalize, after which the Accumulator is spent.
type Accumulator struct {
	cutoff       float64
	structures   map[string]struct{}
	atoms        int
	chains       map[ChainKey]*chainState
	pairs        map[ChainPairKey]*pairState
	byCategory   map[Category]int
	interactions []Interaction
	intra        int
	inter        int
	spent        bool
}

// NewAccumulator seeds chain metrics from the atom set: residue count is the
// number of distinct residue numbers and atom count the raw atom count.
func NewAccumulator(atoms []structure.Atom, cutoff float64) *Accumulator {
	acc := &Accumulator{
		cutoff:     cutoff,
		structures: make(map[string]struct{}),
		atoms:      len(atoms),
		chains:     make(map[ChainKey]*chainState),
		pairs:      make(map[ChainPairKey]*pairState),
		byCategory: make(map[Category]int),
	}
	for i := range atoms {
		a := &atoms[i]
		acc.structures[a.Structure] = struct{}{}
		cs := acc.chain(ChainKey{Structure: a.Structure, Chain: a.Chain})
		cs.atoms++
		cs.residues[a.ResSeq] = struct{}{}
		if _, ok := cs.resNames[a.ResSeq]; !ok {
			cs.resNames[a.ResSeq] = a.ResName
		}
	}
	return acc
}

func (acc *Accumulator) chain(k ChainKey) *chainState {
	cs, ok := acc.chains[k]
	if !ok {
		cs = &chainState{
			residues: make(map[int]struct{}),
			touched:  make(map[int]struct{}),
			resNames: make(map[int]string),
			iface:    make(map[int]*residueState),
		}
		acc.chains[k] = cs
	}
	return cs
}

// Add records one interaction. Each endpoint updates its own chain and residue
// entry, so an intra-chain contact adds two to that chain's intra tally. The
// chain-pair summary counts the interaction once. Add panics after Finalize.
func (acc *Accumulator) Add(it Interaction) {
	if acc.spent {
		panic("contact: Accumulator.Add called after Finalize")
	}
	acc.interactions = append(acc.interactions, it)
	acc.byCategory[it.Category]++
	if it.IsIntraMolecular {
		acc.intra++
	} else {
		acc.inter++
	}

	for _, side := range [2]*AtomRef{&it.A, &it.B} {
		cs := acc.chain(side.ChainKey())
		if it.IsIntraMolecular {
			cs.intra++
		} else {
			cs.inter++
		}
		cs.touched[side.ResSeq] = struct{}{}

		rs, ok := cs.iface[side.ResSeq]
		if !ok {
			name, known := cs.resNames[side.ResSeq]
			if !known {
				name = side.ResName
			}
			rs = &residueState{resName: name, categories: make(map[Category]struct{})}
			cs.iface[side.ResSeq] = rs
		}
		rs.categories[it.Category] = struct{}{}
		if it.IsIntraMolecular {
			rs.intra++
		} else {
			rs.inter++
		}
	}

	pk := it.ChainPair()
	ps, ok := acc.pairs[pk]
	if !ok {
		ps = &pairState{}
		acc.pairs[pk] = ps
	}
	if it.IsIntraMolecular {
		ps.intra++
	} else {
		ps.inter++
	}
}

// Finalize builds the immutable result and spends the Accumulator.
func (acc *Accumulator) Finalize() *AnalysisResult {
	if acc.spent {
		panic("contact: Accumulator.Finalize called twice")
	}
	acc.spent = true

	res := &AnalysisResult{
		Chains:       make([]ChainMetrics, 0, len(acc.chains)),
		Interactions: acc.interactions,
		Interface:    make(map[ChainKey]map[int]InterfaceResidue),
		Density:      make(map[ChainKey][]DensityEntry),
		ChainPairs:   make([]ChainPairSummary, 0, len(acc.pairs)),
	}
	if res.Interactions == nil {
		res.Interactions = []Interaction{}
	}

	keys := make([]ChainKey, 0, len(acc.chains))
	for k := range acc.chains {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	interfaceCount := 0
	for _, k := range keys {
		cs := acc.chains[k]
		res.Chains = append(res.Chains, ChainMetrics{
			Structure:           k.Structure,
			Chain:               k.Chain,
			ResidueCount:        len(cs.residues),
			AtomCount:           cs.atoms,
			InteractingResidues: len(cs.touched),
			Intra:               cs.intra,
			Inter:               cs.inter,
		})
		if len(cs.iface) == 0 {
			continue
		}

		residues := make(map[int]InterfaceResidue, len(cs.iface))
		density := make([]DensityEntry, 0, len(cs.iface))
		for seq, rs := range cs.iface {
			residues[seq] = InterfaceResidue{
				ResName:    rs.resName,
				Categories: sortedCategories(rs.categories),
				Intra:      rs.intra,
				Inter:      rs.inter,
			}
			density = append(density, DensityEntry{
				ResSeq:  seq,
				ResName: rs.resName,
				Intra:   rs.intra,
				Inter:   rs.inter,
				Total:   rs.intra + rs.inter,
			})
		}
		sort.Slice(density, func(i, j int) bool {
			if density[i].Total != density[j].Total {
				return density[i].Total > density[j].Total
			}
			return density[i].ResSeq < density[j].ResSeq
		})
		res.Interface[k] = residues
		res.Density[k] = density
		interfaceCount += len(residues)
	}

	for k, ps := range acc.pairs {
		res.ChainPairs = append(res.ChainPairs, ChainPairSummary{
			Key: k, Intra: ps.intra, Inter: ps.inter, Total: ps.intra + ps.inter,
		})
	}
	sort.Slice(res.ChainPairs, func(i, j int) bool {
		a, b := res.ChainPairs[i], res.ChainPairs[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Key.Less(b.Key)
	})

	byCategory := make(map[Category]int, len(acc.byCategory))
	for c, n := range acc.byCategory {
		byCategory[c] = n
	}
	res.Summary = Summary{
		Cutoff:            acc.cutoff,
		Structures:        len(acc.structures),
		Chains:            len(acc.chains),
		Atoms:             acc.atoms,
		Interactions:      len(res.Interactions),
		Intra:             acc.intra,
		Inter:             acc.inter,
		InterfaceResidues: interfaceCount,
		ByCategory:        byCategory,
	}

	acc.chains, acc.pairs, acc.interactions = nil, nil, nil
	return res
}

func sortedCategories(set map[Category]struct{}) []Category {
	out := make([]Category, 0, len(set))
	for _, c := range Categories {
		if _, ok := set[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
