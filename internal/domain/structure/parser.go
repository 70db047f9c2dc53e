package structure

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Fixed column ranges (0-based, end exclusive) of ATOM/HETATM records.
const (
	colRecord    = 0
	colSerial    = 6
	colName      = 12
	colAltLoc    = 16
	colResName   = 17
	colChain     = 21
	colResSeq    = 22
	colICode     = 26
	colX         = 30
	colY         = 38
	colZ         = 46
	colOccupancy = 54
	colTemp      = 60
	colElement   = 76
	colCharge    = 78
	colEnd       = 80
)

// LineIssue records a rejected coordinate line.
type LineIssue struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseReport summarises one parse.
type ParseReport struct {
	Lines         int         `json:"lines"`
	Records       int         `json:"records"`
	Atoms         int         `json:"atoms"`
	Defaulted     int         `json:"defaulted"`
	AltLocSkipped int         `json:"alt_loc_skipped"`
	Truncated     bool        `json:"truncated"` // stopped at the first ENDMDL
	Malformed     []LineIssue `json:"malformed,omitempty"`
}

type parseOptions struct {
	firstAltLocOnly bool
	allModels       bool
}

// ParseOption customises Parse.
type ParseOption func(*parseOptions)

// WithFirstAltLocOnly keeps only the first alternate location of each atom.
func WithFirstAltLocOnly() ParseOption {
	return func(o *parseOptions) { o.firstAltLocOnly = true }
}

// WithAllModels reads past ENDMDL. Serial uniqueness still applies, so repeated
// serials from later models are reported as malformed.
func WithAllModels() ParseOption {
	return func(o *parseOptions) { o.allModels = true }
}

// Parse reads fixed-column coordinate text and returns the atoms of ATOM and
// HETATM records in file order, tagged with label. Bad content never fails the
// parse: a record with an unparseable serial, residue number or coordinate is
// skipped and listed in the report. Only a read failure returns an error.
// Gzip-compressed input is detected and decompressed.
func Parse(r io.Reader, label string, opts ...ParseOption) (*Structure, *ParseReport, error) {
	o := parseOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("structure: open gzip stream: %w", err)
		}
		defer gz.Close()
		br = bufio.NewReader(gz)
	}

	s := &Structure{Label: label, Atoms: make([]Atom, 0, 256)}
	rep := &ParseReport{}
	serials := make(map[int]struct{})
	altSeen := make(map[string]string)

	for {
		raw, err := br.ReadString('\n')
		if len(raw) > 0 {
			rep.Lines++
			line := strings.TrimRight(raw, "\r\n")
			if stop := parseLine(line, rep.Lines, s, rep, serials, altSeen, &o); stop {
				rep.Truncated = true
				break
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("structure: read line %d: %w", rep.Lines+1, err)
		}
	}

	rep.Atoms = len(s.Atoms)
	return s, rep, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(text, label string, opts ...ParseOption) (*Structure, *ParseReport, error) {
	return Parse(strings.NewReader(text), label, opts...)
}

// ParseFile parses the file at path. Files ending in .gz are decompressed.
func ParseFile(path, label string, opts ...ParseOption) (*Structure, *ParseReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("structure: open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, label, opts...)
}

// parseLine handles one line and reports whether parsing should stop.
func parseLine(line string, n int, s *Structure, rep *ParseReport,
	serials map[int]struct{}, altSeen map[string]string, o *parseOptions) bool {

	record := strings.TrimSpace(field(line, colRecord, colSerial))
	switch record {
	case "ATOM", "HETATM":
	case "ENDMDL":
		return !o.allModels
	default:
		return false
	}
	rep.Records++

	atom, reason, defaulted := decodeAtom(line, record == "HETATM")
	if reason != "" {
		rep.Malformed = append(rep.Malformed, LineIssue{Line: n, Reason: reason})
		return false
	}
	if _, dup := serials[atom.Serial]; dup {
		rep.Malformed = append(rep.Malformed, LineIssue{Line: n, Reason: fmt.Sprintf("duplicate serial %d", atom.Serial)})
		return false
	}
	if o.firstAltLocOnly && atom.AltLoc != "" {
		k := fmt.Sprintf("%s|%d|%s|%s", atom.Chain, atom.ResSeq, atom.ICode, atom.Name)
		first, ok := altSeen[k]
		if !ok {
			altSeen[k] = atom.AltLoc
		} else if first != atom.AltLoc {
			rep.AltLocSkipped++
			return false
		}
	}
	if defaulted {
		rep.Defaulted++
	}
	serials[atom.Serial] = struct{}{}
	atom.Structure = s.Label
	s.Atoms = append(s.Atoms, atom)
	return false
}

// decodeAtom extracts one record. A non-empty reason marks the line malformed;
// defaulted reports that occupancy or temperature factor fell back to 0.
func decodeAtom(line string, het bool) (Atom, string, bool) {
	var a Atom
	var err error

	if a.Serial, err = strconv.Atoi(strings.TrimSpace(field(line, colSerial, colName-1))); err != nil {
		return a, "invalid serial", false
	}
	if a.ResSeq, err = strconv.Atoi(strings.TrimSpace(field(line, colResSeq, colICode))); err != nil {
		return a, "invalid residue sequence number", false
	}
	coords := [3]*float64{&a.X, &a.Y, &a.Z}
	starts := [3]int{colX, colY, colZ}
	for i := range coords {
		v, err := strconv.ParseFloat(strings.TrimSpace(field(line, starts[i], starts[i]+8)), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return a, "invalid coordinate", false
		}
		*coords[i] = v
	}

	rawName := field(line, colName, colAltLoc)
	a.Name = strings.TrimSpace(rawName)
	a.AltLoc = strings.TrimSpace(field(line, colAltLoc, colResName))
	a.ResName = strings.TrimSpace(field(line, colResName, colResName+3))
	a.Chain = strings.TrimSpace(field(line, colChain, colResSeq))
	a.ICode = strings.TrimSpace(field(line, colICode, colICode+1))
	a.HetAtm = het

	defaulted := false
	if a.Occupancy, err = strconv.ParseFloat(strings.TrimSpace(field(line, colOccupancy, colTemp)), 64); err != nil {
		a.Occupancy, defaulted = 0, true
	}
	if a.TempFactor, err = strconv.ParseFloat(strings.TrimSpace(field(line, colTemp, colTemp+6)), 64); err != nil {
		a.TempFactor, defaulted = 0, true
	}

	a.Element = strings.ToUpper(strings.TrimSpace(field(line, colElement, colCharge)))
	if a.Element == "" {
		a.Element = inferElement(rawName, het)
	}
	a.Charge = strings.TrimSpace(field(line, colCharge, colEnd))
	return a, "", defaulted
}

// field returns line[start:end] clipped to the line length.
func field(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}
