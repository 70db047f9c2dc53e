// Package session models a completed analysis run as it is stored, cached
// and listed: the validated input structures, the engine result and the
// identifying metadata.
package session

import (
	"time"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/structure"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// Session is one analysis run. It is immutable once saved.
type Session struct {
	ID         common.ID               `json:"id"`
	Labels     []string                `json:"labels"`
	Accessions []string                `json:"accessions,omitempty"`
	Cutoff     float64                 `json:"cutoff"`
	Structures []*structure.Structure  `json:"structures"`
	Result     *contact.AnalysisResult `json:"result"`
	Duration   time.Duration           `json:"duration"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Header is the list/search view of a session.
type Header struct {
	ID         common.ID       `json:"id"`
	Labels     []string        `json:"labels"`
	Accessions []string        `json:"accessions,omitempty"`
	Summary    contact.Summary `json:"summary"`
	CreatedAt  time.Time       `json:"created_at"`
}

// New assembles a session with a fresh id. Labels and accessions are taken
// from the structures in input order.
func New(structures []*structure.Structure, res *contact.AnalysisResult, took time.Duration) *Session {
	s := &Session{
		ID:         common.NewID(),
		Labels:     make([]string, 0, len(structures)),
		Structures: structures,
		Result:     res,
		Duration:   took,
		CreatedAt:  time.Now().UTC(),
	}
	for _, st := range structures {
		s.Labels = append(s.Labels, st.Label)
		if st.Accession != "" {
			s.Accessions = append(s.Accessions, st.Accession)
		}
	}
	if res != nil {
		s.Cutoff = res.Summary.Cutoff
	}
	return s
}

// Structure returns the input structure with the given label.
func (s *Session) Structure(label string) (*structure.Structure, bool) {
	for _, st := range s.Structures {
		if st.Label == label {
			return st, true
		}
	}
	return nil, false
}

// Header returns the list view.
func (s *Session) Header() Header {
	h := Header{
		ID:         s.ID,
		Labels:     s.Labels,
		Accessions: s.Accessions,
		CreatedAt:  s.CreatedAt,
	}
	if s.Result != nil {
		h.Summary = s.Result.Summary
	}
	return h
}

// NotFound builds the error returned when id does not name a stored session.
func NotFound(id common.ID) error {
	return errors.New(errors.CodeSessionNotFound, "analysis session not found").WithDetail("id=" + id.String())
}

// IsNotFound reports whether err is a session lookup miss.
func IsNotFound(err error) bool {
	return errors.IsCode(err, errors.CodeSessionNotFound)
}
