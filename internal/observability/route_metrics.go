package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Route query outcomes used as the "outcome" label.
const (
	RouteOutcomeFound       = "found"
	RouteOutcomeBlocked     = "blocked"
	RouteOutcomeUnknownNode = "unknown_node"
	RouteOutcomeNoRoute     = "no_route"
)

// RouteCollector exposes route planner metrics.
type RouteCollector struct {
	gatherer prometheus.Gatherer

	Queries       *prometheus.CounterVec
	QueryDuration prometheus.Histogram
	CacheHits     prometheus.Counter
}

// NewRouteCollector registers routing metrics against the provided registerer.
func NewRouteCollector(reg prometheus.Registerer) (*RouteCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	queries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "railguard_route_queries_total",
		Help: "Route planner queries, labeled by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "railguard_route_query_duration_seconds",
		Help:    "Duration of shortest-path computations, cache misses only.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}))
	if err != nil {
		return nil, err
	}
	hits, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railguard_route_cache_hits_total",
		Help: "Route queries answered from the route cache.",
	}))
	if err != nil {
		return nil, err
	}

	return &RouteCollector{
		gatherer:      gathererFor(reg),
		Queries:       queries,
		QueryDuration: duration,
		CacheHits:     hits,
	}, nil
}

// ObserveRouteQuery records a query outcome and, when d > 0, its planner time.
func (c *RouteCollector) ObserveRouteQuery(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.Queries != nil {
		c.Queries.WithLabelValues(outcome).Inc()
	}
	if c.QueryDuration != nil && d > 0 {
		c.QueryDuration.Observe(d.Seconds())
	}
}

// IncCacheHit counts a query served from cache.
func (c *RouteCollector) IncCacheHit() {
	if c == nil || c.CacheHits == nil {
		return
	}
	c.CacheHits.Inc()
}
