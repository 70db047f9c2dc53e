package structure

import (
	"bufio"
	"fmt"
	"io"
)

const atomFormat = "%-6s%5d %-4s%1s%3s %1s%4d%1s   %s%s%s%s%s          %2s%2s\n"

// WriteCoordinates writes s as fixed-column coordinate records terminated by
// an END record. Parsing the output yields the same atoms with coordinates
// rounded to 3 decimals, or fewer where the value needs the room.
func WriteCoordinates(w io.Writer, s *Structure) error {
	bw := bufio.NewWriter(w)
	for i := range s.Atoms {
		if _, err := bw.WriteString(FormatAtom(&s.Atoms[i])); err != nil {
			return fmt.Errorf("structure: write atom %d: %w", s.Atoms[i].Serial, err)
		}
	}
	if _, err := bw.WriteString("END\n"); err != nil {
		return fmt.Errorf("structure: write END: %w", err)
	}
	return bw.Flush()
}

// FormatAtom renders one ATOM/HETATM line including the trailing newline.
func FormatAtom(a *Atom) string {
	record := "ATOM"
	if a.HetAtm {
		record = "HETATM"
	}
	return fmt.Sprintf(atomFormat,
		record, a.Serial, atomNameField(a.Name, a.Element), oneChar(a.AltLoc),
		a.ResName, oneChar(a.Chain), a.ResSeq, oneChar(a.ICode),
		fixed(a.X, 8, 3), fixed(a.Y, 8, 3), fixed(a.Z, 8, 3),
		fixed(a.Occupancy, 6, 2), fixed(a.TempFactor, 6, 2), a.Element, a.Charge)
}

// fixed right-aligns v in width columns with at most prec decimals, dropping
// decimals until the text fits.
func fixed(v float64, width, prec int) string {
	for p := prec; p > 0; p-- {
		if out := fmt.Sprintf("%*.*f", width, p, v); len(out) <= width {
			return out
		}
	}
	return fmt.Sprintf("%*.0f", width, v)
}

// atomNameField aligns names the way the format expects: one-letter element
// names start in column 14, four-character and two-letter element names in 13.
func atomNameField(name, element string) string {
	if len(name) >= 4 || len(element) == 2 {
		return name
	}
	return " " + name
}

func oneChar(s string) string {
	if s == "" {
		return " "
	}
	return s[:1]
}
