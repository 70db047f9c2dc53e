package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/ContactScope/internal/domain/contact"
)

// AppMetrics holds the service metrics. A nil *AppMetrics records nothing, so
// components can take one unconditionally.
type AppMetrics struct {
	// HTTP
	HTTPRequestsTotal   CounterVec
	HTTPRequestDuration HistogramVec

	// gRPC
	GRPCRequestsTotal CounterVec

	// Analysis
	AnalysisTotal     CounterVec
	AnalysisDuration  HistogramVec
	InteractionsTotal CounterVec
	AtomsParsed       HistogramVec

	// Sources and side channels
	FetchTotal      CounterVec
	FetchDuration   HistogramVec
	CacheTotal      CounterVec
	MessagesTotal   CounterVec
	SideEffectFails CounterVec
}

var (
	DefaultHTTPDurationBuckets     = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}
	DefaultAnalysisDurationBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120}
	DefaultAtomCountBuckets        = []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000}
	DefaultFetchDurationBuckets    = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
)

// NewAppMetrics registers every metric on collector.
func NewAppMetrics(collector MetricsCollector) *AppMetrics {
	return &AppMetrics{
		HTTPRequestsTotal:   collector.RegisterCounter("http_requests_total", "Total HTTP requests", "method", "route", "status"),
		HTTPRequestDuration: collector.RegisterHistogram("http_request_duration_seconds", "HTTP request duration", DefaultHTTPDurationBuckets, "method", "route"),

		GRPCRequestsTotal: collector.RegisterCounter("grpc_requests_total", "Total gRPC calls", "service", "method", "code"),

		AnalysisTotal:     collector.RegisterCounter("analysis_total", "Analyses by outcome", "status"),
		AnalysisDuration:  collector.RegisterHistogram("analysis_duration_seconds", "Wall time of an analysis run", DefaultAnalysisDurationBuckets),
		InteractionsTotal: collector.RegisterCounter("interactions_total", "Detected interactions by category", "category"),
		AtomsParsed:       collector.RegisterHistogram("atoms_parsed", "Atoms accepted per parsed structure", DefaultAtomCountBuckets),

		FetchTotal:      collector.RegisterCounter("fetch_total", "Remote structure fetches by outcome", "status"),
		FetchDuration:   collector.RegisterHistogram("fetch_duration_seconds", "Wall time of a remote download including retries", DefaultFetchDurationBuckets),
		CacheTotal:      collector.RegisterCounter("cache_total", "Cache lookups by result", "result"),
		MessagesTotal:   collector.RegisterCounter("messages_total", "Consumed queue messages by outcome", "topic", "status"),
		SideEffectFails: collector.RegisterCounter("side_effect_failures_total", "Failed optional side-channel writes", "component"),
	}
}

// RecordHTTPRequest counts one served request.
func (m *AppMetrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordGRPCRequest counts one finished gRPC call.
func (m *AppMetrics) RecordGRPCRequest(service, method, code string, _ time.Duration) {
	if m == nil {
		return
	}
	m.GRPCRequestsTotal.WithLabelValues(service, method, code).Inc()
}

// RecordAnalysis records one run. res may be nil for failed runs.
func (m *AppMetrics) RecordAnalysis(status string, d time.Duration, res *contact.AnalysisResult) {
	if m == nil {
		return
	}
	m.AnalysisTotal.WithLabelValues(status).Inc()
	m.AnalysisDuration.WithLabelValues().Observe(d.Seconds())
	if res == nil {
		return
	}
	for cat, n := range res.Summary.ByCategory {
		m.InteractionsTotal.WithLabelValues(string(cat)).Add(float64(n))
	}
}

// RecordAtomsParsed observes the atom count of one parsed structure.
func (m *AppMetrics) RecordAtomsParsed(n int) {
	if m == nil {
		return
	}
	m.AtomsParsed.WithLabelValues().Observe(float64(n))
}

// RecordFetch counts one remote fetch; status is "ok", "cached" or "error".
func (m *AppMetrics) RecordFetch(status string) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(status).Inc()
}

// FetchTimer starts timing one remote download. On a nil receiver the timer
// observes nothing.
func (m *AppMetrics) FetchTimer() *Timer {
	if m == nil {
		return NewTimer(nil)
	}
	return NewTimer(m.FetchDuration.WithLabelValues())
}

// RecordCacheAccess counts a cache hit or miss.
func (m *AppMetrics) RecordCacheAccess(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// RecordMessage counts one consumed message.
func (m *AppMetrics) RecordMessage(topic, status string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(topic, status).Inc()
}

// RecordSideEffectFailure counts a failed optional write.
func (m *AppMetrics) RecordSideEffectFailure(component string) {
	if m == nil {
		return
	}
	m.SideEffectFails.WithLabelValues(component).Inc()
}
