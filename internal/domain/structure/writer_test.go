package structure

import (
	"bytes"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAtom_ColumnLayout(t *testing.T) {
	a := Atom{Serial: 1, Name: "N", ResName: "ASP", Chain: "A", ResSeq: 1,
		Occupancy: 1, TempFactor: 20, Element: "N"}
	assert.Equal(t,
		"ATOM      1  N   ASP A   1       0.000   0.000   0.000  1.00 20.00           N  \n",
		FormatAtom(&a))

	het := Atom{Serial: 6, Name: "ZN", ResName: "ZN", Chain: "B", ResSeq: 301,
		X: 12.5, Y: -3.25, Z: 7.125, Occupancy: 0.5, TempFactor: 33.1, Element: "ZN", HetAtm: true}
	line := FormatAtom(&het)
	assert.True(t, strings.HasPrefix(line, "HETATM    6 ZN    ZN B 301"))
	assert.Len(t, strings.TrimRight(line, "\n"), 80)
}

func TestWriteCoordinates_RoundTrip(t *testing.T) {
	orig, _, err := ParseString(sampleEntry, "1ABC")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCoordinates(&buf, orig))
	assert.True(t, strings.HasSuffix(buf.String(), "END\n"))

	back, rep, err := Parse(&buf, "1ABC")
	require.NoError(t, err)
	assert.Empty(t, rep.Malformed)
	require.Len(t, back.Atoms, len(orig.Atoms))
	for i := range orig.Atoms {
		o, b := orig.Atoms[i], back.Atoms[i]
		assert.Equal(t, o.Serial, b.Serial)
		assert.Equal(t, o.Name, b.Name)
		assert.Equal(t, o.ResName, b.ResName)
		assert.Equal(t, o.Chain, b.Chain)
		assert.Equal(t, o.ResSeq, b.ResSeq)
		assert.Equal(t, o.Element, b.Element)
		assert.Equal(t, o.HetAtm, b.HetAtm)
		assert.InDelta(t, o.X, b.X, halfMilli)
		assert.InDelta(t, o.Y, b.Y, halfMilli)
		assert.InDelta(t, o.Z, b.Z, halfMilli)
	}
}

func TestWriteCoordinates_RoundTripRandomCoordinates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := &Structure{Label: "r"}
	for i := 1; i <= 200; i++ {
		s.Atoms = append(s.Atoms, Atom{
			Serial: i, Name: "CA", ResName: "GLY", Chain: "A", ResSeq: i,
			X: rng.Float64()*2000 - 1000, Y: rng.Float64()*2000 - 1000, Z: rng.Float64()*2000 - 1000,
			Occupancy: 1, Element: "C", Structure: "r",
		})
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCoordinates(&buf, s))
	back, _, err := Parse(&buf, "r")
	require.NoError(t, err)
	require.Len(t, back.Atoms, 200)
	for i, a := range s.Atoms {
		b := back.Atoms[i]
		assert.InDelta(t, a.X, b.X, halfMilli)
		assert.InDelta(t, a.Y, b.Y, halfMilli)
		assert.InDelta(t, a.Z, b.Z, halfMilli)
		assert.Equal(t, round3(b.X), b.X)
	}
}

func TestWriteCoordinates_RoundTripWideFields(t *testing.T) {
	line := "ATOM      1  CA  ALA A   1    " +
		"-9999.99" + "  12.000" + "99999.99" + "12345." + "9999.9" +
		"          " + " C" + "  \n"
	orig, rep, err := ParseString(line, "wide")
	require.NoError(t, err)
	require.Empty(t, rep.Malformed)
	require.Len(t, orig.Atoms, 1)

	var buf bytes.Buffer
	require.NoError(t, WriteCoordinates(&buf, orig))
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Len(t, first, 80)

	back, rep, err := Parse(&buf, "wide")
	require.NoError(t, err)
	assert.Empty(t, rep.Malformed)
	require.Len(t, back.Atoms, 1)
	b := back.Atoms[0]
	assert.Equal(t, -9999.99, b.X)
	assert.Equal(t, 12.0, b.Y)
	assert.Equal(t, 99999.99, b.Z)
	assert.Equal(t, 12345.0, b.Occupancy)
	assert.Equal(t, 9999.9, b.TempFactor)
	assert.Equal(t, "C", b.Element)
}

func TestFixed(t *testing.T) {
	assert.Equal(t, "  12.500", fixed(12.5, 8, 3))
	assert.Equal(t, "-9999.99", fixed(-9999.99, 8, 3))
	assert.Equal(t, "-99999.9", fixed(-99999.9, 8, 3))
	assert.Equal(t, " 12345", fixed(12345, 6, 2))
	assert.Equal(t, "  1.00", fixed(1, 6, 2))
}

func TestAtomNameField(t *testing.T) {
	assert.Equal(t, " CA", atomNameField("CA", "C"))
	assert.Equal(t, "CA", atomNameField("CA", "CA"))
	assert.Equal(t, "HD21", atomNameField("HD21", "H"))
}

// halfMilli is the largest error 3-decimal output may introduce.
const halfMilli = 5e-4 + 1e-9

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
