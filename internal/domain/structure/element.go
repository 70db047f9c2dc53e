package structure

import "strings"

// twoLetterElements are the two-letter symbols recognised when inferring an
// element from a HETATM atom name.
var twoLetterElements = map[string]struct{}{
	"FE": {}, "ZN": {}, "MG": {}, "MN": {}, "CU": {}, "CA": {}, "NA": {},
	"CL": {}, "BR": {}, "CO": {}, "NI": {}, "CD": {}, "HG": {}, "SE": {},
	"LI": {}, "AL": {}, "PT": {}, "AU": {}, "AG": {}, "PB": {}, "SR": {},
	"BA": {}, "CS": {}, "RB": {}, "MO": {}, "YB": {}, "GD": {}, "SM": {},
}

// inferElement derives an element symbol from the raw 4-column atom name when
// columns 77-78 are blank. Names that begin in column 13 (raw[0] not blank)
// carry a two-letter symbol only for hetero atoms.
func inferElement(rawName string, het bool) string {
	if len(rawName) == 0 {
		return ""
	}
	if het && rawName[0] != ' ' && !isDigit(rawName[0]) && len(rawName) >= 2 {
		if _, ok := twoLetterElements[strings.ToUpper(rawName[0:2])]; ok {
			return strings.ToUpper(rawName[0:2])
		}
	}
	name := strings.TrimLeft(strings.TrimSpace(rawName), "0123456789")
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1])
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
