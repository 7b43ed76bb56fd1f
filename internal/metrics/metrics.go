// Package metrics exposes the broker's Prometheus counters: tool call
// outcomes, upstream errors, and OAuth flow results, served over an
// optional debug HTTP listener (the stdio transport carries no room for
// a /metrics endpoint of its own).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the broker's Prometheus metrics.
type Registry struct {
	registry *prometheus.Registry

	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
	oauthFlows     *prometheus.CounterVec
	serversTotal   prometheus.Gauge
	toolsMirrored  prometheus.Gauge
	mirrorTrunc    prometheus.Gauge
}

// New builds and registers the broker's metrics.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ica_mcp_proxy_tool_calls_total",
			Help: "Total tool calls brokered, by server, tool, and outcome.",
		}, []string{"server", "tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ica_mcp_proxy_tool_call_duration_seconds",
			Help:    "Tool call latency, by server and outcome.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"server", "status"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ica_mcp_proxy_upstream_errors_total",
			Help: "Upstream session errors, by server and error kind.",
		}, []string{"server", "kind"}),
		oauthFlows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ica_mcp_proxy_oauth_flows_total",
			Help: "OAuth flow attempts, by server, flow type, and outcome.",
		}, []string{"server", "flow", "status"}),
		serversTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ica_mcp_proxy_servers_total",
			Help: "Number of configured upstream servers.",
		}),
		toolsMirrored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ica_mcp_proxy_tools_mirrored",
			Help: "Number of tools currently mirrored into the catalogue.",
		}),
		mirrorTrunc: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ica_mcp_proxy_mirror_truncated",
			Help: "1 if the last catalogue rebuild hit a truncation cap, else 0.",
		}),
	}

	reg.MustRegister(
		r.toolCalls, r.toolDuration, r.upstreamErrors, r.oauthFlows,
		r.serversTotal, r.toolsMirrored, r.mirrorTrunc,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// RecordToolCall records a completed proxy.call invocation.
func (r *Registry) RecordToolCall(server, tool, status string, d time.Duration) {
	r.toolCalls.WithLabelValues(server, tool, status).Inc()
	r.toolDuration.WithLabelValues(server, status).Observe(d.Seconds())
}

// RecordUpstreamError records a failure surfaced by an upstream session.
func (r *Registry) RecordUpstreamError(server, kind string) {
	r.upstreamErrors.WithLabelValues(server, kind).Inc()
}

// RecordOAuthFlow records the outcome of an auth_start/auth_refresh attempt.
func (r *Registry) RecordOAuthFlow(server, flow, status string) {
	r.oauthFlows.WithLabelValues(server, flow, status).Inc()
}

// SetCatalogueStats updates the gauges from the latest mirror.Status.
func (r *Registry) SetCatalogueStats(serversTotal, toolsMirrored int, truncated bool) {
	r.serversTotal.Set(float64(serversTotal))
	r.toolsMirrored.Set(float64(toolsMirrored))
	if truncated {
		r.mirrorTrunc.Set(1)
	} else {
		r.mirrorTrunc.Set(0)
	}
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
