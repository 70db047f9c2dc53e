// Package reporting turns a finished analysis into downloadable artefacts:
// delimited-text interaction tables and flat coordinate dumps. Every report
// is a one-row-per-record transform of the stored result.
package reporting

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/pkg/errors"
)

// ============================================================================
// Variants
// ============================================================================

// Variant selects which interactions an export contains.
type Variant string

const (
	VariantAll   Variant = "all"
	VariantInter Variant = "inter"
	VariantIntra Variant = "intra"
)

// Variants lists every supported variant.
var Variants = []Variant{VariantAll, VariantInter, VariantIntra}

// ParseVariant accepts "all", "inter" or "intra"; empty means all.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case "", VariantAll:
		return VariantAll, nil
	case VariantInter, VariantIntra:
		return Variant(s), nil
	}
	return "", errors.New(errors.CodeExportVariantInvalid, "unknown export variant").
		WithDetail(fmt.Sprintf("variant=%q", s))
}

func (v Variant) keep(it *contact.Interaction) bool {
	switch v {
	case VariantInter:
		return !it.IsIntraMolecular
	case VariantIntra:
		return it.IsIntraMolecular
	default:
		return true
	}
}

// ============================================================================
// Interaction tables
// ============================================================================

// InteractionHeader is the first row of every interaction export.
var InteractionHeader = []string{
	"Structure A", "Chain A", "Residue A", "ResSeq A", "Atom A", "Serial A",
	"Structure B", "Chain B", "Residue B", "ResSeq B", "Atom B", "Serial B",
	"Distance", "Category", "Intra-molecular",
}

// WriteInteractions writes the header and one row per interaction selected by
// v, in result order.
func WriteInteractions(w io.Writer, res *contact.AnalysisResult, v Variant) error {
	cw := newCSVWriter(w)
	cw.row(InteractionHeader...)
	for i := range res.Interactions {
		it := &res.Interactions[i]
		if !v.keep(it) {
			continue
		}
		cw.row(
			it.A.Structure, it.A.Chain, it.A.ResName, resSeq(it.A), it.A.Atom, strconv.Itoa(it.A.Serial),
			it.B.Structure, it.B.Chain, it.B.ResName, resSeq(it.B), it.B.Atom, strconv.Itoa(it.B.Serial),
			FormatDistance(it.Distance), string(it.Category), strconv.FormatBool(it.IsIntraMolecular),
		)
	}
	return cw.flush()
}

// FormatDistance renders a distance with exactly three decimals.
func FormatDistance(d float64) string {
	return strconv.FormatFloat(d, 'f', 3, 64)
}

func resSeq(r contact.AtomRef) string {
	return strconv.Itoa(r.ResSeq) + r.ICode
}

// ChainHeader is the first row of the chain metrics export.
var ChainHeader = []string{
	"Structure", "Chain", "Residues", "Atoms", "Interacting Residues", "Intra", "Inter",
}

// WriteChains writes one row per chain.
func WriteChains(w io.Writer, res *contact.AnalysisResult) error {
	cw := newCSVWriter(w)
	cw.row(ChainHeader...)
	for _, m := range res.Chains {
		cw.row(m.Structure, m.Chain,
			strconv.Itoa(m.ResidueCount), strconv.Itoa(m.AtomCount), strconv.Itoa(m.InteractingResidues),
			strconv.Itoa(m.Intra), strconv.Itoa(m.Inter))
	}
	return cw.flush()
}

// ChainPairHeader is the first row of the chain pair export.
var ChainPairHeader = []string{"Chain A", "Chain B", "Intra", "Inter", "Total"}

// WriteChainPairs writes one row per chain pair, in summary order.
func WriteChainPairs(w io.Writer, res *contact.AnalysisResult) error {
	cw := newCSVWriter(w)
	cw.row(ChainPairHeader...)
	for _, p := range res.ChainPairs {
		cw.row(p.Key.A.String(), p.Key.B.String(),
			strconv.Itoa(p.Intra), strconv.Itoa(p.Inter), strconv.Itoa(p.Total))
	}
	return cw.flush()
}

// ============================================================================
// Artefacts
// ============================================================================

const (
	ContentTypeCSV = "text/csv; charset=utf-8"
	ContentTypePDB = "chemical/x-pdb"
)

// Artefact is a rendered report ready to be stored or streamed.
type Artefact struct {
	Name        string
	ContentType string
	Body        []byte
}

// InteractionsArtefact renders the interaction table for session id.
func InteractionsArtefact(id string, res *contact.AnalysisResult, v Variant) (*Artefact, error) {
	var buf bytes.Buffer
	if err := WriteInteractions(&buf, res, v); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "render interactions")
	}
	return &Artefact{
		Name:        fmt.Sprintf("%s/interactions-%s.csv", id, v),
		ContentType: ContentTypeCSV,
		Body:        buf.Bytes(),
	}, nil
}

// CoordinatesArtefact renders the coordinate dump of s for session id.
func CoordinatesArtefact(id string, s *structure.Structure) (*Artefact, error) {
	var buf bytes.Buffer
	if err := structure.WriteCoordinates(&buf, s); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "render coordinates")
	}
	return &Artefact{
		Name:        fmt.Sprintf("%s/%s.pdb", id, fileLabel(s.Label)),
		ContentType: ContentTypePDB,
		Body:        buf.Bytes(),
	}, nil
}

// fileLabel maps a structure label onto one flat path segment of letters,
// digits, dots, dashes and underscores.
func fileLabel(label string) string {
	base := path.Base(strings.ReplaceAll(label, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	if strings.Trim(base, ".") == "" {
		return "structure"
	}
	return base
}
