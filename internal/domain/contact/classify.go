package contact

import "strings"

// Category is the biochemical class assigned to a contact.
type Category string

const (
	HydrogenBond Category = "Hydrogen Bond"
	SaltBridge   Category = "Salt Bridge"
	VanDerWaals  Category = "Van der Waals"
	Hydrophobic  Category = "Hydrophobic"
	// PiStacking is reserved; ring geometry is not evaluated so it is never
	// assigned.
	PiStacking Category = "Pi-Stacking"
)

// Categories lists every category in report order.
var Categories = []Category{HydrogenBond, SaltBridge, VanDerWaals, Hydrophobic, PiStacking}

// ShortRange is the distance (Å) below which polar and charged rules apply.
const ShortRange = 3.5

var (
	polarElements = map[string]struct{}{"N": {}, "O": {}}

	chargedResidues = map[string]struct{}{
		"ARG": {}, "LYS": {}, "ASP": {}, "GLU": {}, "HIS": {},
	}

	hydrophobicResidues = map[string]struct{}{
		"ALA": {}, "VAL": {}, "LEU": {}, "ILE": {}, "MET": {}, "PHE": {}, "TRP": {}, "PRO": {},
	}
)

// Classify assigns exactly one category from the two elements, the two
// residue names and the distance. Rules are evaluated in order:
//
//  1. d < 3.5 and both elements N or O: Hydrogen Bond
//  2. d < 3.5 and both residues charged: Salt Bridge
//  3. d < 3.5: Van der Waals
//  4. both residues hydrophobic: Hydrophobic
//  5. otherwise Van der Waals
//
// Names are compared case-insensitively; unknown values fall through to the
// Van der Waals default.
func Classify(elemA, elemB, resA, resB string, distance float64) Category {
	if distance < ShortRange {
		if in(polarElements, elemA) && in(polarElements, elemB) {
			return HydrogenBond
		}
		if in(chargedResidues, resA) && in(chargedResidues, resB) {
			return SaltBridge
		}
		return VanDerWaals
	}
	if in(hydrophobicResidues, resA) && in(hydrophobicResidues, resB) {
		return Hydrophobic
	}
	return VanDerWaals
}

func in(set map[string]struct{}, v string) bool {
	_, ok := set[strings.ToUpper(strings.TrimSpace(v))]
	return ok
}
