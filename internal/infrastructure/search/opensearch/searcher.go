package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

// SearchHit is one matching session.
type SearchHit struct {
	Score    float64         `json:"score"`
	Document SessionDocument `json:"document"`
}

// SearchResult is one page of hits.
type SearchResult struct {
	Total  int64       `json:"total"`
	TookMs int64       `json:"took_ms"`
	Hits   []SearchHit `json:"hits"`
}

// Searcher queries the session index.
type Searcher struct {
	client *Client
	logger logging.Logger
}

// NewSearcher returns a searcher over client's index.
func NewSearcher(client *Client, logger logging.Logger) *Searcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: client, logger: logger}
}

// Search matches q against labels and accession codes. An empty query lists
// the newest sessions.
func (s *Searcher) Search(ctx context.Context, q string, page common.Pagination) (*SearchResult, error) {
	page = page.Normalize(20, 100)
	body, err := json.Marshal(buildQuery(strings.TrimSpace(q), page))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search query")
	}

	resp, err := opensearchapi.SearchRequest{
		Index:          []string{s.client.Index()},
		Body:           bytes.NewReader(body),
		TrackTotalHits: true,
	}.Do(ctx, s.client.client)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "search request failed")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return nil, responseError(resp, errors.ErrCodeExternalService, "search failed")
	}

	result, err := parseSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("session search",
		logging.String("query", q),
		logging.Int64("total", result.Total),
		logging.Int64("took_ms", result.TookMs))
	return result, nil
}

// SearchSessions runs Search and returns the hits as session headers.
func (s *Searcher) SearchSessions(ctx context.Context, q string, page common.Pagination) ([]session.Header, int64, error) {
	res, err := s.Search(ctx, q, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]session.Header, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.Document.Header())
	}
	return out, res.Total, nil
}

func buildQuery(q string, page common.Pagination) map[string]any {
	dsl := map[string]any{
		"from": page.Offset(),
		"size": page.PageSize,
	}
	if q == "" {
		dsl["query"] = map[string]any{"match_all": map[string]any{}}
		dsl["sort"] = []any{
			map[string]any{"created_at": map[string]any{"order": "desc"}},
			map[string]any{"session_id": map[string]any{"order": "asc"}},
		}
		return dsl
	}
	dsl["query"] = map[string]any{
		"bool": map[string]any{
			"should": []any{
				map[string]any{"term": map[string]any{"accessions": map[string]any{"value": strings.ToUpper(q), "boost": 3}}},
				map[string]any{"term": map[string]any{"labels.raw": map[string]any{"value": q, "boost": 2}}},
				map[string]any{"match": map[string]any{"labels": map[string]any{"query": q, "fuzziness": "AUTO"}}},
			},
			"minimum_should_match": 1,
		},
	}
	return dsl
}

func parseSearchResponse(body io.Reader) (*SearchResult, error) {
	var resp struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64         `json:"_score"`
				Source SessionDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &SearchResult{
		Total:  resp.Hits.Total.Value,
		TookMs: resp.Took,
		Hits:   make([]SearchHit, 0, len(resp.Hits.Hits)),
	}
	for _, h := range resp.Hits.Hits {
		result.Hits = append(result.Hits, SearchHit{Score: h.Score, Document: h.Source})
	}
	return result, nil
}
