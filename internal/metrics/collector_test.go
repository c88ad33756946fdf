package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bgunyel/ragnar/llm"
	"github.com/bgunyel/ragnar/workflow"
)

var (
	_ llm.Recorder      = (*Collector)(nil)
	_ workflow.Observer = (*Collector)(nil)
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

func TestNewCollector_RegistersWithRegistry(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordHTTPRequest("GET", "/health", 200, time.Millisecond, 0, 10)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_http_requests_total")

	// A second collector on a fresh registry with the same namespace does not panic.
	assert.NotPanics(t, func() { NewCollector("test", prometheus.NewRegistry(), nil) })
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("POST", "/api/v1/chat", 200, 100*time.Millisecond, 1024, 2048)
	c.RecordHTTPRequest("POST", "/api/v1/chat", 201, 50*time.Millisecond, 512, 1024)
	c.RecordHTTPRequest("POST", "/api/v1/chat", 503, 10*time.Millisecond, 512, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/chat", "5xx")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.httpRequestDuration))
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordLLMRequest("groq", "llama-3.3-70b", "success", time.Second, 1000, 500, 0.0075)
	c.RecordLLMRequest("groq", "llama-3.3-70b", "success", time.Second, 200, 100, 0.0025)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("groq", "llama-3.3-70b", "success")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("groq", "llama-3.3-70b", "prompt")))
	assert.Equal(t, 600.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("groq", "llama-3.3-70b", "completion")))
	assert.InDelta(t, 0.01, testutil.ToFloat64(c.llmCost.WithLabelValues("groq", "llama-3.3-70b")), 1e-9)
}

func TestCollector_ObserveWorkflowEvents(t *testing.T) {
	c, _ := newTestCollector(t)
	const graph = "self_rag"

	c.Observe(workflow.Event{Type: workflow.EventRunStart, Graph: graph})
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsActive.WithLabelValues(graph)))

	c.Observe(workflow.Event{Type: workflow.EventNodeEnd, Graph: graph, Node: "retrieve", Duration: 20 * time.Millisecond})
	c.Observe(workflow.Event{Type: workflow.EventNodeEnd, Graph: graph, Node: "generate", Duration: time.Second, Err: errors.New("boom")})
	c.Observe(workflow.Event{Type: workflow.EventRoute, Graph: graph, Node: "grade_documents", Label: "max_iter", Forced: true})
	c.Observe(workflow.Event{Type: workflow.EventRoute, Graph: graph, Node: "grade_documents", Label: "relevant"})
	c.Observe(workflow.Event{Type: workflow.EventRunEnd, Graph: graph, Duration: 2 * time.Second})

	c.Observe(workflow.Event{Type: workflow.EventRunStart, Graph: graph})
	c.Observe(workflow.Event{Type: workflow.EventRunError, Graph: graph, Err: errors.New("boom")})

	assert.Equal(t, 0.0, testutil.ToFloat64(c.runsActive.WithLabelValues(graph)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues(graph, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues(graph, "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.nodeErrors.WithLabelValues(graph, "generate")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.nodeErrors.WithLabelValues(graph, "retrieve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.routesTotal.WithLabelValues(graph, "grade_documents", "max_iter", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.routesTotal.WithLabelValues(graph, "grade_documents", "relevant", "false")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.nodeDuration))
}

func TestCollector_RecordDBConnections(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordDBConnections("sqlite", 4, 3, 1, 7)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.dbConnectionsOpen.WithLabelValues("sqlite")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.dbConnectionsIdle.WithLabelValues("sqlite")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dbConnectionsInUse.WithLabelValues("sqlite")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.dbWaitCount.WithLabelValues("sqlite")))
}

func TestStatusCode(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 404: "4xx", 500: "5xx", 100: "unknown"}
	for code, want := range tests {
		assert.Equal(t, want, statusCode(code), "code %d", code)
	}
}
