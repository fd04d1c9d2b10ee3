package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// SimCollector bundles Prometheus metrics for the simulator: fleet gauges,
// tick timings and the gRPC/HTTP surfaces.
type SimCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Ticks            prometheus.Counter
	TickDuration     prometheus.Histogram
	SafetyViolations prometheus.Counter
	Trains           prometheus.Gauge
	TrainsDispatched prometheus.Gauge
}

// NewSimCollector registers simulator metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := gathererFor(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "railguard_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and status code.",
	}, []string{"service", "method", "code"}))
	if err != nil {
		return nil, err
	}
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railguard_grpc_request_duration_seconds",
		Help:    "gRPC call latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"service", "method"}))
	if err != nil {
		return nil, err
	}

	httpRequests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "railguard_http_requests_total",
		Help: "Total number of HTTP requests, labeled by method, route template, and status code.",
	}, []string{"method", "route", "code"}))
	if err != nil {
		return nil, err
	}
	httpDurations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railguard_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"}))
	if err != nil {
		return nil, err
	}

	ticks, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railguard_ticks_total",
		Help: "Number of simulation ticks applied.",
	}))
	if err != nil {
		return nil, err
	}
	tickDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "railguard_tick_duration_seconds",
		Help:    "Wall time spent applying one tick under the registry lock.",
		Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}))
	if err != nil {
		return nil, err
	}
	violations, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "railguard_safety_violations_total",
		Help: "Safety-bubble violations detected by the post-tick audit.",
	}))
	if err != nil {
		return nil, err
	}
	trains, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "railguard_trains",
		Help: "Current number of trains in the registry.",
	}))
	if err != nil {
		return nil, err
	}
	dispatched, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "railguard_trains_dispatched",
		Help: "Current number of dispatched trains.",
	}))
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		RPCRequests:      requests,
		RPCDurations:     durations,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
		Ticks:            ticks,
		TickDuration:     tickDuration,
		SafetyViolations: violations,
		Trains:           trains,
		TrainsDispatched: dispatched,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *SimCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetFleetCounts satisfies the fleet metrics recorder so FleetState can
// drive gauge values directly from its mutators.
func (c *SimCollector) SetFleetCounts(trains, dispatched int) {
	if c == nil {
		return
	}
	if c.Trains != nil {
		c.Trains.Set(float64(trains))
	}
	if c.TrainsDispatched != nil {
		c.TrainsDispatched.Set(float64(dispatched))
	}
}

// ObserveTick records one applied tick.
func (c *SimCollector) ObserveTick(d time.Duration, violations int) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.TickDuration != nil {
		c.TickDuration.Observe(d.Seconds())
	}
	if c.SafetyViolations != nil && violations > 0 {
		c.SafetyViolations.Add(float64(violations))
	}
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components. It tolerates empty strings and partial paths, returning
// "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func gathererFor(reg prometheus.Registerer) prometheus.Gatherer {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

// register adds c to reg. When an equal collector is already registered the
// existing one is returned so repeated construction against one registry
// shares series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("observability: collector %T already registered with an incompatible type", are.ExistingCollector)
	}
	return existing, nil
}
