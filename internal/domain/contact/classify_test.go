package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Precedence(t *testing.T) {
	cases := []struct {
		name         string
		elemA, elemB string
		resA, resB   string
		distance     float64
		want         Category
	}{
		{"polar pair short range", "N", "O", "SER", "THR", 2.9, HydrogenBond},
		{"polar beats charged", "O", "N", "ASP", "LYS", 3.0, HydrogenBond},
		{"charged non-polar atoms", "C", "C", "ARG", "GLU", 3.2, SaltBridge},
		{"his counts as charged", "C", "N", "HIS", "ASP", 3.4, SaltBridge},
		{"short range fallback", "C", "S", "GLY", "CYS", 3.0, VanDerWaals},
		{"hydrophobic long range", "C", "C", "ALA", "LEU", 4.0, Hydrophobic},
		{"hydrophobic at threshold", "N", "O", "VAL", "PHE", 3.5, Hydrophobic},
		{"polar at threshold is not hbond", "N", "O", "SER", "THR", 3.5, VanDerWaals},
		{"charged at long range", "N", "O", "ARG", "ASP", 4.2, VanDerWaals},
		{"mixed hydrophobic", "C", "C", "ALA", "SER", 4.5, VanDerWaals},
		{"hydrophobic short non-polar", "C", "C", "ILE", "MET", 3.0, VanDerWaals},
		{"unknown everything", "", "?", "UNK", "HOH", 4.9, VanDerWaals},
		{"case and whitespace", " n", "o ", "asp", "lys", 2.0, HydrogenBond},
		{"zero distance", "C", "C", "PRO", "TRP", 0, VanDerWaals},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.elemA, tc.elemB, tc.resA, tc.resB, tc.distance))
		})
	}
}

func TestClassify_IsSymmetricAndNeverPiStacking(t *testing.T) {
	elems := []string{"N", "O", "C", "S", ""}
	for _, ea := range elems {
		for _, eb := range elems {
			for _, ra := range residueNames {
				for _, rb := range residueNames {
					for _, d := range []float64{0.5, 2.5, 3.49, 3.5, 4.0, 5.0} {
						c := Classify(ea, eb, ra, rb, d)
						assert.Equal(t, c, Classify(eb, ea, rb, ra, d))
						assert.NotEqual(t, PiStacking, c)
						assert.Contains(t, Categories, c)
					}
				}
			}
		}
	}
}
