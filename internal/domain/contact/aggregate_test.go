package contact

import (
	"context"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

func smallComplex() []*structure.Structure {
	return []*structure.Structure{{
		Label: "1ABC",
		Atoms: []structure.Atom{
			mkAtom("1ABC", "A", 1, "ASP", 10, "OD1", "O", 0, 0, 0),
			mkAtom("1ABC", "A", 2, "ASP", 10, "CG", "C", 1.2, 0, 0),
			mkAtom("1ABC", "A", 3, "ALA", 11, "CB", "C", 20, 0, 0),
			mkAtom("1ABC", "B", 4, "LYS", 50, "NZ", "N", 0, 2.8, 0),
			mkAtom("1ABC", "B", 5, "LEU", 51, "CD1", "C", 20, 4, 0),
		},
	}}
}

func TestAnalyze_SmallComplex(t *testing.T) {
	res, err := Analyze(context.Background(), smallComplex())
	require.NoError(t, err)

	// OD1-CG salt bridge within A, OD1-NZ hydrogen bond, CG-NZ salt bridge,
	// CB-CD1 hydrophobic.
	require.Len(t, res.Interactions, 4)
	assert.Equal(t, 4, res.Summary.Interactions)
	assert.Equal(t, 1, res.Summary.Intra)
	assert.Equal(t, 3, res.Summary.Inter)
	assert.Equal(t, 5, res.Summary.Atoms)
	assert.Equal(t, 1, res.Summary.Structures)
	assert.Equal(t, 2, res.Summary.Chains)
	assert.Equal(t, 1, res.Summary.ByCategory[HydrogenBond])
	assert.Equal(t, 2, res.Summary.ByCategory[SaltBridge])
	assert.Equal(t, 1, res.Summary.ByCategory[Hydrophobic])
	assert.Zero(t, res.Summary.ByCategory[VanDerWaals])
	assert.Equal(t, DefaultCutoff, res.Summary.Cutoff)

	a, ok := res.Chain(ChainKey{"1ABC", "A"})
	require.True(t, ok)
	assert.Equal(t, ChainMetrics{Structure: "1ABC", Chain: "A", ResidueCount: 2, AtomCount: 3,
		InteractingResidues: 2, Intra: 2, Inter: 3}, a)

	b, ok := res.Chain(ChainKey{"1ABC", "B"})
	require.True(t, ok)
	assert.Equal(t, 3, b.Inter)
	assert.Equal(t, 0, b.Intra)
	assert.Equal(t, 2, b.InteractingResidues)

	asp := res.Interface[ChainKey{"1ABC", "A"}][10]
	assert.Equal(t, "ASP", asp.ResName)
	assert.Equal(t, []Category{HydrogenBond, SaltBridge}, asp.Categories)
	assert.Equal(t, 2, asp.Intra)
	assert.Equal(t, 2, asp.Inter)

	dens := res.Density[ChainKey{"1ABC", "A"}]
	require.Len(t, dens, 2)
	assert.Equal(t, DensityEntry{ResSeq: 10, ResName: "ASP", Intra: 2, Inter: 2, Total: 4}, dens[0])
	assert.Equal(t, 11, dens[1].ResSeq)

	require.Len(t, res.ChainPairs, 2)
	assert.Equal(t, NewChainPairKey(ChainKey{"1ABC", "B"}, ChainKey{"1ABC", "A"}), res.ChainPairs[0].Key)
	assert.Equal(t, 3, res.ChainPairs[0].Inter)
	assert.Equal(t, 3, res.ChainPairs[0].Total)
	assert.Equal(t, ChainPairSummary{Key: ChainPairKey{A: ChainKey{"1ABC", "A"}, B: ChainKey{"1ABC", "A"}}, Intra: 1, Total: 1}, res.ChainPairs[1])
}

func TestAnalyze_AggregateInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	set := randomStructures(rng, 800, 28)

	res, err := Analyze(context.Background(), set, WithWorkers(3))
	require.NoError(t, err)
	require.NotEmpty(t, res.Interactions)

	for _, m := range res.Chains {
		assert.LessOrEqual(t, m.InteractingResidues, m.ResidueCount, m.Key().String())

		var intra, inter int
		for _, r := range res.Interface[m.Key()] {
			intra += r.Intra
			inter += r.Inter
		}
		assert.Equal(t, m.Intra, intra, m.Key().String())
		assert.Equal(t, m.Inter, inter, m.Key().String())
		assert.Len(t, res.Interface[m.Key()], m.InteractingResidues)
		assert.Len(t, res.Density[m.Key()], m.InteractingResidues)
	}

	expected := map[ChainPairKey]int{}
	for i := range res.Interactions {
		expected[res.Interactions[i].ChainPair()]++
	}
	require.Len(t, res.ChainPairs, len(expected))
	total := 0
	for i, p := range res.ChainPairs {
		assert.Equal(t, expected[p.Key], p.Total, p.Key.String())
		assert.Equal(t, p.Intra+p.Inter, p.Total)
		total += p.Total
		if i > 0 {
			prev := res.ChainPairs[i-1]
			assert.True(t, prev.Total > p.Total || (prev.Total == p.Total && prev.Key.Less(p.Key)))
		}
	}
	assert.Equal(t, len(res.Interactions), total)

	for _, d := range res.Density {
		for i := 1; i < len(d); i++ {
			assert.True(t, d[i-1].Total > d[i].Total || (d[i-1].Total == d[i].Total && d[i-1].ResSeq < d[i].ResSeq))
		}
	}

	sum := 0
	for _, n := range res.Summary.ByCategory {
		sum += n
	}
	assert.Equal(t, res.Summary.Interactions, sum)
	assert.Zero(t, res.Summary.ByCategory[PiStacking])
}

func TestAnalyze_IndependentOfAtomOrderAndWorkers(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	set := randomStructures(rng, 500, 24)
	base, err := Analyze(context.Background(), set)
	require.NoError(t, err)

	shuffled := make([]*structure.Structure, len(set))
	for i := len(set) - 1; i >= 0; i-- {
		atoms := append([]structure.Atom(nil), set[i].Atoms...)
		rng.Shuffle(len(atoms), func(a, b int) { atoms[a], atoms[b] = atoms[b], atoms[a] })
		shuffled[len(set)-1-i] = &structure.Structure{Label: set[i].Label, Atoms: atoms}
	}
	got, err := Analyze(context.Background(), shuffled, WithWorkers(6))
	require.NoError(t, err)
	assert.Equal(t, base.Summary, got.Summary)
	assert.Equal(t, base.Chains, got.Chains)
	assert.Equal(t, base.Interactions, got.Interactions)
	assert.Equal(t, base.ChainPairs, got.ChainPairs)
	assert.Equal(t, base.Density, got.Density)
	assert.Equal(t, base.Interface, got.Interface)
}

func TestAnalyze_UsesStructureLabelAndCopiesInput(t *testing.T) {
	set := []*structure.Structure{{Label: "renamed", Atoms: []structure.Atom{
		mkAtom("stale", "A", 1, "GLY", 1, "CA", "C", 0, 0, 0),
		mkAtom("stale", "A", 2, "GLY", 2, "CA", "C", 1, 0, 0),
	}}}
	res, err := Analyze(context.Background(), set)
	require.NoError(t, err)
	require.Len(t, res.Interactions, 1)
	assert.Equal(t, "renamed", res.Interactions[0].A.Structure)
	assert.Equal(t, "stale", set[0].Atoms[0].Structure)
}

func TestAnalyze_NoContacts(t *testing.T) {
	set := []*structure.Structure{{Label: "s", Atoms: []structure.Atom{
		mkAtom("s", "A", 1, "GLY", 1, "CA", "C", 0, 0, 0),
		mkAtom("s", "A", 2, "GLY", 2, "CA", "C", 6, 0, 0),
	}}}
	res, err := Analyze(context.Background(), set)
	require.NoError(t, err)
	assert.NotNil(t, res.Interactions)
	assert.Empty(t, res.Interactions)
	assert.Empty(t, res.ChainPairs)
	require.Len(t, res.Chains, 1)
	assert.Equal(t, 2, res.Chains[0].ResidueCount)
	assert.Zero(t, res.Chains[0].InteractingResidues)
	assert.Empty(t, res.Interface)
}

func TestAnalyze_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Analyze(ctx, smallComplex())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAccumulator_SpentAfterFinalize(t *testing.T) {
	acc := NewAccumulator(nil, DefaultCutoff)
	res := acc.Finalize()
	assert.NotNil(t, res)
	assert.Panics(t, func() { acc.Add(Interaction{}) })
	assert.Panics(t, func() { acc.Finalize() })
}

func TestAccumulator_UnknownChainIsCreated(t *testing.T) {
	acc := NewAccumulator(nil, DefaultCutoff)
	acc.Add(Interaction{
		A:        AtomRef{Structure: "x", Chain: "A", ResName: "GLY", ResSeq: 1, Serial: 1},
		B:        AtomRef{Structure: "x", Chain: "A", ResName: "GLY", ResSeq: 1, Serial: 2},
		Distance: 1, Category: VanDerWaals, IsIntraMolecular: true,
	})
	res := acc.Finalize()
	require.Len(t, res.Chains, 1)
	assert.Equal(t, 2, res.Chains[0].Intra)
	assert.Equal(t, 1, res.Chains[0].InteractingResidues)
	assert.Equal(t, 2, res.Interface[ChainKey{"x", "A"}][1].Intra)
}

func TestAnalysisResult_JSONRoundTrip(t *testing.T) {
	res, err := Analyze(context.Background(), smallComplex())
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"1ABC:A"`)

	var back AnalysisResult
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, res.Summary, back.Summary)
	assert.Equal(t, res.Chains, back.Chains)
	assert.Equal(t, res.Interactions, back.Interactions)
	assert.Equal(t, res.Interface, back.Interface)
	assert.Equal(t, res.Density, back.Density)
	assert.Equal(t, res.ChainPairs, back.ChainPairs)
}

func TestAnalysisResult_Filter(t *testing.T) {
	res, err := Analyze(context.Background(), smallComplex())
	require.NoError(t, err)
	intra := res.Filter(func(it *Interaction) bool { return it.IsIntraMolecular })
	inter := res.Filter(func(it *Interaction) bool { return !it.IsIntraMolecular })
	assert.Len(t, intra, 1)
	assert.Len(t, inter, 3)
}
