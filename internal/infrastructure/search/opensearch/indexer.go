package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	"github.com/turtacn/ContactScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

var ErrDocumentIndexFailed = errors.New(errors.ErrCodeExternalService, "document index failed")

// SessionDocument is the indexed form of a session header.
type SessionDocument struct {
	SessionID         string    `json:"session_id"`
	Labels            []string  `json:"labels"`
	Accessions        []string  `json:"accessions"`
	Cutoff            float64   `json:"cutoff"`
	Structures        int       `json:"structures"`
	Atoms             int       `json:"atoms"`
	Interactions      int       `json:"interactions"`
	Intra             int       `json:"intra"`
	Inter             int       `json:"inter"`
	InterfaceResidues int       `json:"interface_residues"`
	CreatedAt         time.Time `json:"created_at"`
}

// DocumentFromHeader flattens a session header.
func DocumentFromHeader(h session.Header) SessionDocument {
	accessions := h.Accessions
	if accessions == nil {
		accessions = []string{}
	}
	return SessionDocument{
		SessionID:         h.ID.String(),
		Labels:            h.Labels,
		Accessions:        accessions,
		Cutoff:            h.Summary.Cutoff,
		Structures:        h.Summary.Structures,
		Atoms:             h.Summary.Atoms,
		Interactions:      h.Summary.Interactions,
		Intra:             h.Summary.Intra,
		Inter:             h.Summary.Inter,
		InterfaceResidues: h.Summary.InterfaceResidues,
		CreatedAt:         h.CreatedAt,
	}
}

// Header rebuilds the session header the document was made from. Category
// counts are not indexed and come back empty.
func (d SessionDocument) Header() session.Header {
	return session.Header{
		ID:         common.ID(d.SessionID),
		Labels:     d.Labels,
		Accessions: d.Accessions,
		Summary: contact.Summary{
			Cutoff:            d.Cutoff,
			Structures:        d.Structures,
			Atoms:             d.Atoms,
			Interactions:      d.Interactions,
			Intra:             d.Intra,
			Inter:             d.Inter,
			InterfaceResidues: d.InterfaceResidues,
		},
		CreatedAt: d.CreatedAt,
	}
}

// sessionMapping indexes labels twice: analysed text for search and keyword
// for exact filters. Accession codes are case-insensitive keywords.
var sessionMapping = map[string]any{
	"settings": map[string]any{
		"number_of_shards":   1,
		"number_of_replicas": 0,
		"analysis": map[string]any{
			"normalizer": map[string]any{
				"upper": map[string]any{"type": "custom", "filter": []string{"uppercase"}},
			},
		},
	},
	"mappings": map[string]any{
		"properties": map[string]any{
			"session_id": map[string]any{"type": "keyword"},
			"labels": map[string]any{
				"type":   "text",
				"fields": map[string]any{"raw": map[string]any{"type": "keyword"}},
			},
			"accessions":         map[string]any{"type": "keyword", "normalizer": "upper"},
			"cutoff":             map[string]any{"type": "double"},
			"structures":         map[string]any{"type": "integer"},
			"atoms":              map[string]any{"type": "integer"},
			"interactions":       map[string]any{"type": "integer"},
			"intra":              map[string]any{"type": "integer"},
			"inter":              map[string]any{"type": "integer"},
			"interface_residues": map[string]any{"type": "integer"},
			"created_at":         map[string]any{"type": "date"},
		},
	},
}

// Indexer writes session documents.
type Indexer struct {
	client  *Client
	refresh string
	logger  logging.Logger
}

// NewIndexer returns an indexer. refresh is passed through as the index
// refresh policy ("", "true", "wait_for").
func NewIndexer(client *Client, refresh string, logger logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Indexer{client: client, refresh: refresh, logger: logger}
}

// EnsureIndex creates the session index when it does not exist.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	index := i.client.Index()
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{index}}.Do(ctx, i.client.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to check index existence")
	}
	resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return errors.Newf(errors.ErrCodeExternalService, "check index existence: status %d", resp.StatusCode)
	}

	body, err := json.Marshal(sessionMapping)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	resp, err = opensearchapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(body)}.Do(ctx, i.client.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to create index")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		// A concurrent creator won the race.
		if resp.StatusCode == http.StatusBadRequest {
			if exists, _ := i.indexExists(ctx); exists {
				return nil
			}
		}
		return responseError(resp, errors.ErrCodeExternalService, "index creation failed")
	}
	i.logger.Info("index created", logging.String("index", index))
	return nil
}

func (i *Indexer) indexExists(ctx context.Context) (bool, error) {
	resp, err := opensearchapi.IndicesExistsRequest{Index: []string{i.client.Index()}}.Do(ctx, i.client.client)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// IndexSession upserts the document for h under its session id.
func (i *Indexer) IndexSession(ctx context.Context, h session.Header) error {
	body, err := json.Marshal(DocumentFromHeader(h))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal document")
	}
	resp, err := opensearchapi.IndexRequest{
		Index:      i.client.Index(),
		DocumentID: h.ID.String(),
		Body:       bytes.NewReader(body),
		Refresh:    i.refresh,
	}.Do(ctx, i.client.client)
	if err != nil {
		return ErrDocumentIndexFailed.WithCause(err)
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return responseError(resp, errors.ErrCodeExternalService, "document index failed")
	}
	i.logger.Debug("session indexed", logging.String("session_id", h.ID.String()))
	return nil
}

// DeleteSession removes the document. A missing document is not an error.
func (i *Indexer) DeleteSession(ctx context.Context, id common.ID) error {
	resp, err := opensearchapi.DeleteRequest{
		Index:      i.client.Index(),
		DocumentID: id.String(),
		Refresh:    i.refresh,
	}.Do(ctx, i.client.client)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to delete document")
	}
	defer resp.Body.Close()
	if resp.IsError() && resp.StatusCode != http.StatusNotFound {
		return responseError(resp, errors.ErrCodeExternalService, "document delete failed")
	}
	return nil
}
