package contact

// ChainMetrics summarises one chain.
type ChainMetrics struct {
	Structure           string `json:"structure"`
	Chain               string `json:"chain"`
	ResidueCount        int    `json:"residue_count"`
	AtomCount           int    `json:"atom_count"`
	InteractingResidues int    `json:"interacting_residues"`
	Intra               int    `json:"intra"`
	Inter               int    `json:"inter"`
}

// Key returns the chain key.
func (m ChainMetrics) Key() ChainKey { return ChainKey{Structure: m.Structure, Chain: m.Chain} }

// InterfaceResidue is a residue touched by at least one interaction.
type InterfaceResidue struct {
	ResName    string     `json:"res_name"`
	Categories []Category `json:"categories"`
	Intra      int        `json:"intra"`
	Inter      int        `json:"inter"`
}

// Total returns Intra + Inter.
func (r InterfaceResidue) Total() int { return r.Intra + r.Inter }

// DensityEntry ranks a residue by how many contacts it takes part in.
type DensityEntry struct {
	ResSeq  int    `json:"res_seq"`
	ResName string `json:"res_name"`
	Intra   int    `json:"intra"`
	Inter   int    `json:"inter"`
	Total   int    `json:"total"`
}

// ChainPairSummary counts interactions between two chains (or within one when
// A == B).
type ChainPairSummary struct {
	Key   ChainPairKey `json:"key"`
	Intra int          `json:"intra"`
	Inter int          `json:"inter"`
	Total int          `json:"total"`
}

// Summary holds run-wide counters.
type Summary struct {
	Cutoff            float64          `json:"cutoff"`
	Structures        int              `json:"structures"`
	Chains            int              `json:"chains"`
	Atoms             int              `json:"atoms"`
	Interactions      int              `json:"interactions"`
	Intra             int              `json:"intra"`
	Inter             int              `json:"inter"`
	InterfaceResidues int              `json:"interface_residues"`
	ByCategory        map[Category]int `json:"by_category"`
}

// AnalysisResult is the complete, immutable outcome of one run.
//
// Chains are ordered by chain key. Interactions are ordered by canonical pair
// key. Density lists are ordered by total descending, then residue number.
// ChainPairs are ordered by total descending, then key.
type AnalysisResult struct {
	Summary      Summary                               `json:"summary"`
	Chains       []ChainMetrics                        `json:"chains"`
	Interactions []Interaction                         `json:"interactions"`
	Interface    map[ChainKey]map[int]InterfaceResidue `json:"interface"`
	Density      map[ChainKey][]DensityEntry           `json:"density"`
	ChainPairs   []ChainPairSummary                    `json:"chain_pairs"`
}

// Filter returns the interactions for which keep reports true, preserving
// order.
func (r *AnalysisResult) Filter(keep func(*Interaction) bool) []Interaction {
	out := make([]Interaction, 0)
	for i := range r.Interactions {
		if keep(&r.Interactions[i]) {
			out = append(out, r.Interactions[i])
		}
	}
	return out
}

// Chain returns the metrics for k.
func (r *AnalysisResult) Chain(k ChainKey) (ChainMetrics, bool) {
	for _, m := range r.Chains {
		if m.Key() == k {
			return m, true
		}
	}
	return ChainMetrics{}, false
}
