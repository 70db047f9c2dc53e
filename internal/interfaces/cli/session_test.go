package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ContactScope/pkg/client"
)

const remoteSession = `{
  "id": "s1",
  "labels": ["1abc", "2xyz"],
  "accessions": ["2XYZ"],
  "cutoff": 5,
  "duration_ms": 40,
  "created_at": "2026-03-01T10:00:00Z",
  "result": {
    "summary": {"cutoff": 5, "structures": 2, "chains": 2, "atoms": 10, "interactions": 2, "inter": 2},
    "interactions": [
      {"a": {"structure": "1abc", "chain": "A", "res_name": "ASP", "res_seq": 1, "atom": "OD1"},
       "b": {"structure": "2xyz", "chain": "B", "res_name": "LYS", "res_seq": 2, "atom": "NZ"},
       "distance": 2.8, "category": "Salt Bridge"}
    ],
    "total_interactions": 2,
    "truncated": true
  }
}`

func newSessionFixture(t *testing.T, handler http.HandlerFunc) *CLIContext {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := client.NewClient(srv.URL, client.WithRetryMax(0))
	require.NoError(t, err)
	cc := newTestCLIContext(t)
	cc.Client = c
	return cc
}

func TestSessionGet_Text(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/s1", r.URL.Path)
		w.Write([]byte(remoteSession))
	})

	out, err := execute(NewSessionCmd(), cc, "get", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "Session:       s1")
	assert.Contains(t, out, "Accessions:    2XYZ")
	assert.Contains(t, out, "1abc:A ASP1 OD1")
	assert.Contains(t, out, "2.800")
	assert.Contains(t, out, "... 1 more")
}

func TestSessionGet_JSON(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(remoteSession))
	})
	cc.OutputFormat = OutputJSON

	out, err := execute(NewSessionCmd(), cc, "get", "s1")
	require.NoError(t, err)
	var sess client.Session
	require.NoError(t, json.Unmarshal([]byte(out), &sess))
	assert.Equal(t, "s1", sess.ID)
	assert.Equal(t, 2, sess.Result.TotalInteractions)
}

func TestSessionGet_NotFound(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"ANA_002","message":"session not found"}`))
	})
	_, err := execute(NewSessionCmd(), cc, "get", "missing")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestSession_NoClient(t *testing.T) {
	cc := newTestCLIContext(t)
	_, err := execute(NewSessionCmd(), cc, "get", "s1")
	assert.ErrorContains(t, err, "--server")
}

func TestSessionExport_InteractionsToFile(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/s1/interactions.csv", r.URL.Path)
		assert.Equal(t, "inter", r.URL.Query().Get("variant"))
		w.Header().Set("Content-Disposition", `attachment; filename="interactions-inter.csv"`)
		w.Write([]byte("header\nrow\n"))
	})
	dir := t.TempDir()

	out, err := execute(NewSessionCmd(), cc, "export", "s1", "--variant", "inter", "--file", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "OK: wrote 11 bytes")

	data, err := os.ReadFile(filepath.Join(dir, "interactions-inter.csv"))
	require.NoError(t, err)
	assert.Equal(t, "header\nrow\n", string(data))
}

func TestSessionExport_StructureToStdout(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/s1/structures/1abc.pdb", r.URL.Path)
		w.Header().Set("X-Artefact-URL", "http://store/s1/1abc.pdb")
		w.Write([]byte("ATOM\n"))
	})

	out, err := execute(NewSessionCmd(), cc, "export", "s1", "--structure", "1abc", "--url")
	require.NoError(t, err)
	assert.Contains(t, out, "ATOM\n")
	assert.Contains(t, out, "http://store/s1/1abc.pdb")
}

func TestSessionExport_Summary(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/s1/summary.md", r.URL.Path)
		w.Write([]byte("# Contact summary s1\n"))
	})

	out, err := execute(NewSessionCmd(), cc, "export", "s1", "--summary")
	require.NoError(t, err)
	assert.Contains(t, out, "# Contact summary s1")

	_, err = execute(NewSessionCmd(), cc, "export", "s1", "--summary", "--structure", "1abc")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestSessionSearch(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1abc", r.URL.Query().Get("q"))
		assert.Equal(t, "3", r.URL.Query().Get("page_size"))
		w.Write([]byte(`{"sessions":[{"id":"s1","labels":["1abc","2xyz"],"summary":{"interactions":7,"inter":3},"created_at":"2026-03-01T10:00:00Z"}],
			"total":1,"page":1,"page_size":3,"total_pages":1}`))
	})

	out, err := execute(NewSessionCmd(), cc, "search", "1abc", "--page-size", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "1abc,2xyz")
	assert.Contains(t, out, "2026-03-01 10:00")
	assert.Contains(t, out, "Page 1 of 1 (1 sessions)")
}

func TestSessionSearch_Empty(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sessions":[],"total":0,"page":1,"page_size":20,"total_pages":0}`))
	})
	out, err := execute(NewSessionCmd(), cc, "search")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")
}

func TestSessionDelete(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	out, err := execute(NewSessionCmd(), cc, "delete", "s1")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted session s1")
}

func TestSessionPartners(t *testing.T) {
	cc := newSessionFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analyses/s1/chains/1abc/A/partners", r.URL.Path)
		w.Write([]byte(`{"chain":"1abc:A","partners":[{"chain":"2xyz:B","inter":5,"total":5}]}`))
	})
	cc.OutputFormat = OutputTable

	out, err := execute(NewSessionCmd(), cc, "partners", "s1", "1abc", "A")
	require.NoError(t, err)
	assert.Contains(t, out, "2xyz:B")
	assert.Contains(t, out, "5")
}

func TestSessionPartners_ArgCount(t *testing.T) {
	cc := newTestCLIContext(t)
	_, err := execute(NewSessionCmd(), cc, "partners", "s1")
	assert.Error(t, err)
}
