package contact

import (
	"sort"

	"github.com/turtacn/ContactScope/internal/domain/structure"
)

// AtomRef is the identity of an interaction endpoint.
type AtomRef struct {
	Structure string `json:"structure"`
	Chain     string `json:"chain"`
	ResName   string `json:"res_name"`
	ResSeq    int    `json:"res_seq"`
	ICode     string `json:"i_code,omitempty"`
	Atom      string `json:"atom"`
	Serial    int    `json:"serial"`
	Element   string `json:"element"`
}

func refOf(a *structure.Atom) AtomRef {
	return AtomRef{
		Structure: a.Structure,
		Chain:     a.Chain,
		ResName:   a.ResName,
		ResSeq:    a.ResSeq,
		ICode:     a.ICode,
		Atom:      a.Name,
		Serial:    a.Serial,
		Element:   a.Element,
	}
}

// Key returns the structure-qualified atom key.
func (r AtomRef) Key() structure.AtomKey {
	return structure.AtomKey{Structure: r.Structure, Serial: r.Serial}
}

// ChainKey returns the owning chain.
func (r AtomRef) ChainKey() ChainKey {
	return ChainKey{Structure: r.Structure, Chain: r.Chain}
}

// Interaction is one classified contact. A carries the lower canonical key.
type Interaction struct {
	A                AtomRef  `json:"a"`
	B                AtomRef  `json:"b"`
	Distance         float64  `json:"distance"`
	Category         Category `json:"category"`
	IsIntraMolecular bool     `json:"is_intra_molecular"`
}

// PairKey returns the canonical key of the interaction's atom pair.
func (it *Interaction) PairKey() PairKey {
	return PairKey{Lo: it.A.Key(), Hi: it.B.Key()}
}

// ChainPair returns the unordered chain pair of the endpoints.
func (it *Interaction) ChainPair() ChainPairKey {
	return NewChainPairKey(it.A.ChainKey(), it.B.ChainKey())
}

// IsIntraMolecular reports whether two atoms share both structure and chain.
// Different chains of one structure count as inter-molecular.
func IsIntraMolecular(a, b *structure.Atom) bool {
	return a.Structure == b.Structure && a.Chain == b.Chain
}

// newInteraction builds the record for a pair already known to be in range.
// lo must carry the lower key.
func newInteraction(lo, hi *structure.Atom, distance float64) Interaction {
	return Interaction{
		A:                refOf(lo),
		B:                refOf(hi),
		Distance:         distance,
		Category:         Classify(lo.Element, hi.Element, lo.ResName, hi.ResName, distance),
		IsIntraMolecular: IsIntraMolecular(lo, hi),
	}
}

func sortInteractions(list []Interaction) {
	sort.Slice(list, func(i, j int) bool { return list[i].PairKey().Less(list[j].PairKey()) })
}
