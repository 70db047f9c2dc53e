package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/internal/domain/contact"
	"github.com/turtacn/ContactScope/internal/domain/session"
	pkgerrors "github.com/turtacn/ContactScope/pkg/errors"
	"github.com/turtacn/ContactScope/pkg/types/common"
)

func sampleHeader() session.Header {
	return session.Header{
		ID:     common.ID("5d0c6a4e-2f3b-4c1d-9e8f-0a1b2c3d4e5f"),
		Labels: []string{"1ABC", "upload"},
		Summary: contact.Summary{
			Cutoff:       5,
			Structures:   2,
			Atoms:        3,
			Interactions: 1,
			Inter:        1,
		},
		CreatedAt: time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
	}
}

func TestDocumentFromHeader(t *testing.T) {
	doc := DocumentFromHeader(sampleHeader())
	assert.Equal(t, "5d0c6a4e-2f3b-4c1d-9e8f-0a1b2c3d4e5f", doc.SessionID)
	assert.Equal(t, []string{}, doc.Accessions)
	assert.Equal(t, 3, doc.Atoms)
	assert.Equal(t, 1, doc.Inter)
}

func TestEnsureIndex_CreatesMissingIndex(t *testing.T) {
	var created map[string]any
	c, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions", r.URL.Path)
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
	})

	require.NoError(t, NewIndexer(c, "", log).EnsureIndex(context.Background()))
	props := created["mappings"].(map[string]any)["properties"].(map[string]any)
	assert.Contains(t, props, "accessions")
	assert.Contains(t, props, "labels")
	assert.True(t, log.HasMessage("info", "index created"))
}

func TestEnsureIndex_ExistingIndex(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, NewIndexer(c, "", nil).EnsureIndex(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestEnsureIndex_CreateError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"type":"security_exception","reason":"no permissions"}}`))
	})

	err := NewIndexer(c, "", nil).EnsureIndex(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no permissions")
}

func TestIndexSession(t *testing.T) {
	var got SessionDocument
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/sessions/_doc/5d0c6a4e-2f3b-4c1d-9e8f-0a1b2c3d4e5f", r.URL.Path)
		assert.Equal(t, "wait_for", r.URL.Query().Get("refresh"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	require.NoError(t, NewIndexer(c, "wait_for", nil).IndexSession(context.Background(), sampleHeader()))
	assert.Equal(t, []string{"1ABC", "upload"}, got.Labels)
	assert.Equal(t, 5.0, got.Cutoff)
}

func TestIndexSession_Rejected(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"mapper_parsing_exception","reason":"failed to parse"}}`))
	})

	err := NewIndexer(c, "", nil).IndexSession(context.Background(), sampleHeader())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExternalService))
}

func TestDeleteSession_MissingIsNotAnError(t *testing.T) {
	status := http.StatusNotFound
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{}`))
	})
	idx := NewIndexer(c, "", nil)

	assert.NoError(t, idx.DeleteSession(context.Background(), common.NewID()))
	status = http.StatusInternalServerError
	assert.Error(t, idx.DeleteSession(context.Background(), common.NewID()))
}
