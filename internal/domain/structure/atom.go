// Package structure models atomic-coordinate structures: the Atom record, the
// fixed-column flat-file parser and writer, accession codes and
// multi-structure input validation.
package structure

import (
	"sort"
)

// Atom is one ATOM or HETATM record. Serial is unique within its Structure
// and (Chain, ResSeq, ICode) identifies a residue.
type Atom struct {
	Serial     int     `json:"serial"`
	Name       string  `json:"name"`
	AltLoc     string  `json:"alt_loc,omitempty"`
	ResName    string  `json:"res_name"`
	Chain      string  `json:"chain"`
	ResSeq     int     `json:"res_seq"`
	ICode      string  `json:"i_code,omitempty"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Occupancy  float64 `json:"occupancy"`
	TempFactor float64 `json:"temp_factor"`
	Element    string  `json:"element"`
	Charge     string  `json:"charge,omitempty"`
	HetAtm     bool    `json:"het_atm,omitempty"`
	Structure  string  `json:"structure"`
}

// Key returns the structure-qualified identity of the atom.
func (a Atom) Key() AtomKey {
	return AtomKey{Structure: a.Structure, Serial: a.Serial}
}

// AtomKey identifies an atom across a multi-structure run. Raw serials repeat
// between structures, so the owning label is part of the key.
type AtomKey struct {
	Structure string
	Serial    int
}

// Less orders keys by structure label, then serial.
func (k AtomKey) Less(o AtomKey) bool {
	if k.Structure != o.Structure {
		return k.Structure < o.Structure
	}
	return k.Serial < o.Serial
}

// Structure is a labelled, ordered atom collection as read from one input.
type Structure struct {
	Label     string `json:"label"`
	Accession string `json:"accession,omitempty"`
	Atoms     []Atom `json:"atoms"`
}

// Len returns the number of atoms.
func (s *Structure) Len() int { return len(s.Atoms) }

// Chains returns the distinct chain identifiers in ascending order.
func (s *Structure) Chains() []string {
	seen := make(map[string]struct{})
	for _, a := range s.Atoms {
		seen[a.Chain] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Relabel sets the owning label on the structure and every atom.
func (s *Structure) Relabel(label string) {
	s.Label = label
	for i := range s.Atoms {
		s.Atoms[i].Structure = label
	}
}
