package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func healthEngine(h *HealthHandler) *gin.Engine {
	r := gin.New()
	h.RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_Liveness(t *testing.T) {
	w := get(healthEngine(NewHealthHandler("v1.2.3")), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var body LivenessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alive", body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
}

func TestHealth_ReadinessAllHealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckFunc("postgres", func(context.Context) error { return nil }),
		CheckFunc("redis", func(context.Context) error { return nil }),
	)
	w := get(healthEngine(h), "/readyz")
	require.Equal(t, http.StatusOK, w.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Len(t, body.Components, 2)
}

func TestHealth_ReadinessUnhealthy(t *testing.T) {
	h := NewHealthHandler("dev",
		CheckFunc("postgres", func(context.Context) error { return nil }),
		CheckFunc("neo4j", func(context.Context) error { return fmt.Errorf("connection refused") }),
	)
	w := get(healthEngine(h), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body.Status)
	assert.Equal(t, "unhealthy", body.Components["neo4j"].Status)
	assert.Equal(t, "connection refused", body.Components["neo4j"].Error)

	w = get(healthEngine(h), "/healthz/detail")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
}

func TestHealth_Draining(t *testing.T) {
	h := NewHealthHandler("dev")
	r := healthEngine(h)
	assert.Equal(t, http.StatusOK, get(r, "/readyz").Code)

	h.SetDraining(true)
	w := get(r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "draining")
	assert.Equal(t, http.StatusOK, get(r, "/healthz").Code)
}
