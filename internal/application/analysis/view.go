package analysis

import (
	"time"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// ResultView is an AnalysisResult prepared for interactive display. The
// interaction list may be cut short; TotalInteractions keeps the real count.
type ResultView struct {
	Summary           contact.Summary                                       `json:"summary"`
	Chains            []contact.ChainMetrics                                `json:"chains"`
	Interactions      []contact.Interaction                                 `json:"interactions"`
	TotalInteractions int                                                   `json:"total_interactions"`
	Truncated         bool                                                  `json:"truncated"`
	Interface         map[contact.ChainKey]map[int]contact.InterfaceResidue `json:"interface"`
	Density           map[contact.ChainKey][]contact.DensityEntry           `json:"density"`
	ChainPairs        []contact.ChainPairSummary                            `json:"chain_pairs"`
}

// View keeps the first limit interactions of res. limit <= 0 keeps all.
// Exports never go through View.
func View(res *contact.AnalysisResult, limit int) *ResultView {
	if res == nil {
		return nil
	}
	list := res.Interactions
	truncated := false
	if limit > 0 && len(list) > limit {
		list = list[:limit:limit]
		truncated = true
	}
	if list == nil {
		list = []contact.Interaction{}
	}
	return &ResultView{
		Summary:           res.Summary,
		Chains:            res.Chains,
		Interactions:      list,
		TotalInteractions: len(res.Interactions),
		Truncated:         truncated,
		Interface:         res.Interface,
		Density:           res.Density,
		ChainPairs:        res.ChainPairs,
	}
}

// SessionView is the API representation of a session.
type SessionView struct {
	ID         common.ID   `json:"id"`
	Labels     []string    `json:"labels"`
	Accessions []string    `json:"accessions,omitempty"`
	Cutoff     float64     `json:"cutoff"`
	DurationMs int64       `json:"duration_ms"`
	CreatedAt  time.Time   `json:"created_at"`
	Result     *ResultView `json:"result"`
}

// NewSessionView builds the display form of s with at most limit
// interactions.
func NewSessionView(s *session.Session, limit int) *SessionView {
	return &SessionView{
		ID:         s.ID,
		Labels:     s.Labels,
		Accessions: s.Accessions,
		Cutoff:     s.Cutoff,
		DurationMs: s.Duration.Milliseconds(),
		CreatedAt:  s.CreatedAt,
		Result:     View(s.Result, limit),
	}
}
