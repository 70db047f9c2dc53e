package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method, route string
	status        int
}

type recorder struct{ seen []observation }

func (r *recorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	r.seen = append(r.seen, observation{method, route, status})
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	rec := &recorder{}
	r := gin.New()
	r.Use(Metrics(rec))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	doRequest(r, http.MethodGet, "/items/42", nil)
	doRequest(r, http.MethodGet, "/nowhere", nil)

	require.Len(t, rec.seen, 2)
	assert.Equal(t, observation{"GET", "/items/:id", 200}, rec.seen[0])
	assert.Equal(t, observation{"GET", "unmatched", 404}, rec.seen[1])
}
