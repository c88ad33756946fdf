package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/bgunyel/ragnar/internal/database"
	"github.com/bgunyel/ragnar/workflow"
)

// GraphInfo describes one compiled workflow graph.
type GraphInfo struct {
	Name    string   `json:"name"`
	Entry   string   `json:"entry"`
	Nodes   []string `json:"nodes"`
	Mermaid string   `json:"mermaid,omitempty"`
}

// DescribeGraph summarizes g for the status endpoint.
func DescribeGraph[S any](g *workflow.Graph[S]) GraphInfo {
	return GraphInfo{
		Name:    g.Name(),
		Entry:   g.Entry(),
		Nodes:   g.Nodes(),
		Mermaid: g.Mermaid(),
	}
}

// StatusInfo is the body of /api/v1/status.
type StatusInfo struct {
	Service    string              `json:"service"`
	Version    string              `json:"version"`
	Uptime     string              `json:"uptime"`
	Components map[string]string   `json:"components"`
	Graphs     []GraphInfo         `json:"graphs"`
	Database   *database.PoolStats `json:"database,omitempty"`
}

// StatusHandler reports what the process runs.
type StatusHandler struct {
	service    string
	version    string
	started    time.Time
	components map[string]string
	graphs     []GraphInfo
	dbStats    func() database.PoolStats
}

// NewStatusHandler creates a StatusHandler. components maps a concern to
// its backend (checkpoint: redis, rag_variant: self_rag...).
func NewStatusHandler(service, version string, components map[string]string, graphs []GraphInfo) *StatusHandler {
	sorted := append([]GraphInfo(nil), graphs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &StatusHandler{
		service:    service,
		version:    version,
		started:    time.Now(),
		components: components,
		graphs:     sorted,
	}
}

// WithDatabase adds connection pool statistics to the status.
func (h *StatusHandler) WithDatabase(stats func() database.PoolStats) *StatusHandler {
	h.dbStats = stats
	return h
}

// HandleStatus serves GET /api/v1/status.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	info := StatusInfo{
		Service:    h.service,
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Components: h.components,
		Graphs:     h.graphs,
	}
	if h.dbStats != nil {
		stats := h.dbStats()
		info.Database = &stats
	}
	WriteSuccess(w, r, info)
}
