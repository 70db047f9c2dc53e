// Package repositories projects analysis results into the Neo4j chain
// contact graph.
package repositories

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	infraNeo4j "github.com/turtacn/ContactScope/internal/infrastructure/database/neo4j"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// Graph layout:
//
//	(:Session {id})-[:HAS_CHAIN]->(:Chain {session_id, structure, chain, ...metrics})
//	(:Chain)-[:CONTACTS {intra, inter, total}]->(:Chain)
//
// CONTACTS always points from the lower chain key to the higher one. A chain
// with intra-chain contacts carries a self loop.

const (
	cypherMergeSession = `
		MERGE (s:Session {id: $session_id})
		SET s.cutoff = $cutoff, s.interactions = $interactions`

	cypherMergeChains = `
		MATCH (s:Session {id: $session_id})
		UNWIND $chains AS c
		MERGE (n:Chain {session_id: $session_id, structure: c.structure, chain: c.chain})
		SET n.residue_count = c.residue_count,
		    n.atom_count = c.atom_count,
		    n.interacting_residues = c.interacting_residues,
		    n.intra = c.intra,
		    n.inter = c.inter
		MERGE (s)-[:HAS_CHAIN]->(n)`

	cypherMergeContacts = `
		UNWIND $pairs AS p
		MATCH (a:Chain {session_id: $session_id, structure: p.a_structure, chain: p.a_chain})
		MATCH (b:Chain {session_id: $session_id, structure: p.b_structure, chain: p.b_chain})
		MERGE (a)-[r:CONTACTS]->(b)
		SET r.intra = p.intra, r.inter = p.inter, r.total = p.total`

	cypherPartners = `
		MATCH (a:Chain {session_id: $session_id, structure: $structure, chain: $chain})-[r:CONTACTS]-(b:Chain)
		RETURN b.structure AS structure, b.chain AS chain, r.intra AS intra, r.inter AS inter, r.total AS total
		ORDER BY total DESC, structure, chain`

	cypherDeleteSession = `
		MATCH (s:Session {id: $session_id})
		OPTIONAL MATCH (s)-[:HAS_CHAIN]->(c:Chain)
		DETACH DELETE c, s`
)

// Partner is one chain in contact with a queried chain.
type Partner struct {
	Chain contact.ChainKey `json:"chain"`
	Intra int              `json:"intra"`
	Inter int              `json:"inter"`
	Total int              `json:"total"`
}

// ContactGraphRepository writes and queries the chain contact graph.
type ContactGraphRepository struct {
	driver infraNeo4j.DriverInterface
	log    logging.Logger
}

// NewContactGraphRepository binds the repository to a driver.
func NewContactGraphRepository(driver infraNeo4j.DriverInterface, log logging.Logger) *ContactGraphRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ContactGraphRepository{driver: driver, log: log}
}

// Project writes the session node, one node per chain and one CONTACTS edge
// per chain pair in a single write transaction. Re-projecting the same
// session overwrites the stored values.
func (r *ContactGraphRepository) Project(ctx context.Context, id common.ID, res *contact.AnalysisResult) error {
	params := map[string]any{
		"session_id":   id.String(),
		"cutoff":       res.Summary.Cutoff,
		"interactions": int64(res.Summary.Interactions),
		"chains":       chainParams(res.Chains),
		"pairs":        pairParams(res.ChainPairs),
	}

	_, err := r.driver.ExecuteWrite(ctx, func(tx infraNeo4j.Transaction) (any, error) {
		for _, q := range []string{cypherMergeSession, cypherMergeChains, cypherMergeContacts} {
			result, err := tx.Run(ctx, q, params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("project session %s: %w", id, err)
	}
	r.log.Debug("projected contact graph",
		logging.String("session_id", id.String()),
		logging.Int("chains", len(res.Chains)),
		logging.Int("pairs", len(res.ChainPairs)),
	)
	return nil
}

func chainParams(chains []contact.ChainMetrics) []map[string]any {
	out := make([]map[string]any, 0, len(chains))
	for _, c := range chains {
		out = append(out, map[string]any{
			"structure":            c.Structure,
			"chain":                c.Chain,
			"residue_count":        int64(c.ResidueCount),
			"atom_count":           int64(c.AtomCount),
			"interacting_residues": int64(c.InteractingResidues),
			"intra":                int64(c.Intra),
			"inter":                int64(c.Inter),
		})
	}
	return out
}

func pairParams(pairs []contact.ChainPairSummary) []map[string]any {
	out := make([]map[string]any, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, map[string]any{
			"a_structure": p.Key.A.Structure,
			"a_chain":     p.Key.A.Chain,
			"b_structure": p.Key.B.Structure,
			"b_chain":     p.Key.B.Chain,
			"intra":       int64(p.Intra),
			"inter":       int64(p.Inter),
			"total":       int64(p.Total),
		})
	}
	return out
}

// Partners lists the chains in contact with k, busiest first. A chain with
// intra-chain contacts lists itself.
func (r *ContactGraphRepository) Partners(ctx context.Context, id common.ID, k contact.ChainKey) ([]Partner, error) {
	params := map[string]any{
		"session_id": id.String(),
		"structure":  k.Structure,
		"chain":      k.Chain,
	}
	out, err := r.driver.ExecuteRead(ctx, func(tx infraNeo4j.Transaction) (any, error) {
		result, err := tx.Run(ctx, cypherPartners, params)
		if err != nil {
			return nil, err
		}
		return infraNeo4j.CollectRecords(ctx, result, partnerFromRecord)
	})
	if err != nil {
		return nil, fmt.Errorf("partners of %s in session %s: %w", k, id, err)
	}
	partners, _ := out.([]Partner)
	if partners == nil {
		partners = []Partner{}
	}
	return partners, nil
}

func partnerFromRecord(rec *neo4j.Record) (Partner, error) {
	var p Partner
	structure, _, err := neo4j.GetRecordValue[string](rec, "structure")
	if err != nil {
		return p, err
	}
	chain, _, err := neo4j.GetRecordValue[string](rec, "chain")
	if err != nil {
		return p, err
	}
	intra, _, err := neo4j.GetRecordValue[int64](rec, "intra")
	if err != nil {
		return p, err
	}
	inter, _, err := neo4j.GetRecordValue[int64](rec, "inter")
	if err != nil {
		return p, err
	}
	total, _, err := neo4j.GetRecordValue[int64](rec, "total")
	if err != nil {
		return p, err
	}
	p.Chain = contact.ChainKey{Structure: structure, Chain: chain}
	p.Intra, p.Inter, p.Total = int(intra), int(inter), int(total)
	return p, nil
}

// DeleteSession removes the session node and its chains.
func (r *ContactGraphRepository) DeleteSession(ctx context.Context, id common.ID) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx infraNeo4j.Transaction) (any, error) {
		result, err := tx.Run(ctx, cypherDeleteSession, map[string]any{"session_id": id.String()})
		if err != nil {
			return nil, err
		}
		_, err = result.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("delete session %s graph: %w", id, err)
	}
	return nil
}
