// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_agent_route_decisions_total",
			Help: "Total number of routing decisions by datasource",
		},
		[]string{"route"},
	)

	RouteFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "company_agent_route_fallbacks_total",
			Help: "Total number of routing failures that fell back to general_query",
		},
	)

	ResolverOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_agent_resolver_outcomes_total",
			Help: "Total number of name resolutions by tier (exact, substring, fuzzy, none, error)",
		},
		[]string{"tier"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_agent_llm_requests_total",
			Help: "Total number of LLM calls by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_agent_import_rows_total",
			Help: "Total number of CSV rows processed by outcome (created, skipped, failed)",
		},
		[]string{"outcome"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "company_agent_http_requests_total",
			Help: "Total number of HTTP requests by method, route pattern and status",
		},
		[]string{"method", "pattern", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "company_agent_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "pattern"},
	)
)
