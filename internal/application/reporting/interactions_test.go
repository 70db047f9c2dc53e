package reporting

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/pkg/errors"
)

const complexPDB = `ATOM      1  N   ASP A  10       0.000   0.000   0.000  1.00 20.00           N
ATOM      2  N   LYS B  20       3.000   0.000   0.000  1.00 20.00           N
ATOM      3  CA  ALA A  11      30.000   0.000   0.000  1.00 20.00           C
ATOM      4  CA  ALA A  12      34.000   0.000   0.000  1.00 20.00           C
END
`

func analyzed(t *testing.T) (*structure.Structure, *contact.AnalysisResult) {
	t.Helper()
	s, _, err := structure.ParseString(complexPDB, "my model")
	require.NoError(t, err)
	res, err := contact.Analyze(context.Background(), []*structure.Structure{s})
	require.NoError(t, err)
	require.Len(t, res.Interactions, 2)
	return s, res
}

func lines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestParseVariant(t *testing.T) {
	for in, want := range map[string]Variant{"": VariantAll, "all": VariantAll, "inter": VariantInter, "intra": VariantIntra} {
		got, err := ParseVariant(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseVariant("INTER")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeExportVariantInvalid))
}

func TestWriteInteractions_All(t *testing.T) {
	_, res := analyzed(t)
	var buf bytes.Buffer
	require.NoError(t, WriteInteractions(&buf, res, VariantAll))

	rows := lines(buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, `"Structure A","Chain A","Residue A","ResSeq A","Atom A","Serial A",`+
		`"Structure B","Chain B","Residue B","ResSeq B","Atom B","Serial B",Distance,Category,Intra-molecular`, rows[0])
	assert.Equal(t, `"my model",A,ASP,10,N,1,"my model",B,LYS,20,N,2,3.000,"Hydrogen Bond",false`, rows[1])
	assert.Equal(t, `"my model",A,ALA,11,CA,3,"my model",A,ALA,12,CA,4,4.000,Hydrophobic,true`, rows[2])
}

func TestWriteInteractions_Subsets(t *testing.T) {
	_, res := analyzed(t)

	var inter, intra bytes.Buffer
	require.NoError(t, WriteInteractions(&inter, res, VariantInter))
	require.NoError(t, WriteInteractions(&intra, res, VariantIntra))

	interRows, intraRows := lines(inter.String()), lines(intra.String())
	require.Len(t, interRows, 2)
	require.Len(t, intraRows, 2)
	assert.Contains(t, interRows[1], "Hydrogen Bond")
	assert.Contains(t, intraRows[1], "Hydrophobic")
	assert.Equal(t, interRows[0], intraRows[0])
}

func TestWriteInteractions_EmptyResultHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInteractions(&buf, &contact.AnalysisResult{}, VariantAll))
	assert.Len(t, lines(buf.String()), 1)
}

func TestWriteInteractions_IsDeterministic(t *testing.T) {
	_, res := analyzed(t)
	var a, b bytes.Buffer
	require.NoError(t, WriteInteractions(&a, res, VariantAll))
	require.NoError(t, WriteInteractions(&b, res, VariantAll))
	assert.Equal(t, a.String(), b.String())
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "3.000", FormatDistance(3))
	assert.Equal(t, "4.123", FormatDistance(4.12345))
	assert.Equal(t, "0.000", FormatDistance(0))
	assert.Equal(t, "5.000", FormatDistance(4.9996))
}

func TestCSVQuoting(t *testing.T) {
	var buf bytes.Buffer
	cw := newCSVWriter(&buf)
	cw.row("plain", "with space", `say "hi"`, "a,b", "line\nbreak", "")
	require.NoError(t, cw.flush())
	assert.Equal(t, "plain,\"with space\",\"say \"\"hi\"\"\",\"a,b\",\"line\nbreak\",\n", buf.String())
}

func TestWriteChainsAndPairs(t *testing.T) {
	_, res := analyzed(t)

	var chains bytes.Buffer
	require.NoError(t, WriteChains(&chains, res))
	rows := lines(chains.String())
	require.Len(t, rows, 3)
	assert.Equal(t, `Structure,Chain,Residues,Atoms,"Interacting Residues",Intra,Inter`, rows[0])
	assert.Equal(t, `"my model",A,3,3,3,2,1`, rows[1])
	assert.Equal(t, `"my model",B,1,1,1,0,1`, rows[2])

	var pairs bytes.Buffer
	require.NoError(t, WriteChainPairs(&pairs, res))
	rows = lines(pairs.String())
	require.Len(t, rows, 3)
	assert.Equal(t, `"my model:A","my model:A",1,0,1`, rows[1])
	assert.Equal(t, `"my model:A","my model:B",0,1,1`, rows[2])
}

func TestArtefacts(t *testing.T) {
	s, res := analyzed(t)

	a, err := InteractionsArtefact("sess-1", res, VariantIntra)
	require.NoError(t, err)
	assert.Equal(t, "sess-1/interactions-intra.csv", a.Name)
	assert.Equal(t, ContentTypeCSV, a.ContentType)
	assert.Len(t, lines(string(a.Body)), 2)

	c, err := CoordinatesArtefact("sess-1", s)
	require.NoError(t, err)
	assert.Equal(t, "sess-1/my_model.pdb", c.Name)
	assert.Equal(t, ContentTypePDB, c.ContentType)

	back, _, err := structure.ParseString(string(c.Body), "again")
	require.NoError(t, err)
	require.Len(t, back.Atoms, len(s.Atoms))
	for i := range s.Atoms {
		assert.InDelta(t, s.Atoms[i].X, back.Atoms[i].X, 5e-4)
		assert.Equal(t, s.Atoms[i].Serial, back.Atoms[i].Serial)
	}
}

func TestFileLabel(t *testing.T) {
	cases := map[string]string{
		"1ABC":            "1ABC",
		"my model":        "my_model",
		"nested/dir/name": "name",
		`win\path\x.y`:    "x.y",
		"../../etc":       "etc",
		"..":              "structure",
		"":                "structure",
		"/":               "_",
		"a:b*c?":          "a_b_c_",
	}
	for in, want := range cases {
		assert.Equal(t, want, fileLabel(in), in)
	}
}

func TestCoordinatesArtefact_NameStaysFlat(t *testing.T) {
	s := &structure.Structure{Label: "../x/evil"}
	a, err := CoordinatesArtefact("sess-2", s)
	require.NoError(t, err)
	assert.Equal(t, "sess-2/evil.pdb", a.Name)
}
