package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

func sampleSession(t *testing.T) *Session {
	t.Helper()
	a := &structure.Structure{Label: "1ABC", Accession: "1ABC", Atoms: []structure.Atom{
		{Serial: 1, Name: "N", ResName: "ASP", Chain: "A", ResSeq: 1, Element: "N"},
		{Serial: 2, Name: "N", ResName: "LYS", Chain: "B", ResSeq: 2, X: 3, Element: "N"},
	}}
	b := &structure.Structure{Label: "upload", Atoms: []structure.Atom{
		{Serial: 1, Name: "CA", ResName: "ALA", Chain: "A", ResSeq: 1, X: 50, Element: "C"},
	}}
	res, err := contact.Analyze(context.Background(), []*structure.Structure{a, b})
	require.NoError(t, err)
	return New([]*structure.Structure{a, b}, res, 15*time.Millisecond)
}

func TestNew_CollectsLabelsAndAccessions(t *testing.T) {
	s := sampleSession(t)

	require.NoError(t, s.ID.Validate())
	assert.Equal(t, []string{"1ABC", "upload"}, s.Labels)
	assert.Equal(t, []string{"1ABC"}, s.Accessions)
	assert.Equal(t, contact.DefaultCutoff, s.Cutoff)
	assert.Equal(t, 15*time.Millisecond, s.Duration)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestSession_Structure(t *testing.T) {
	s := sampleSession(t)

	st, ok := s.Structure("upload")
	require.True(t, ok)
	assert.Len(t, st.Atoms, 1)

	_, ok = s.Structure("missing")
	assert.False(t, ok)
}

func TestSession_Header(t *testing.T) {
	s := sampleSession(t)
	h := s.Header()

	assert.Equal(t, s.ID, h.ID)
	assert.Equal(t, 1, h.Summary.Interactions)
	assert.Equal(t, 3, h.Summary.Atoms)
}

func TestNotFound(t *testing.T) {
	err := NotFound(common.ID("x"))
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "id=x")
	assert.False(t, IsNotFound(fmt.Errorf("other")))
}
