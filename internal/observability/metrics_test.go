package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/railguard.v1.SimulationService/GetState"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(5 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationService", "GetState", "OK")); got != 1 {
		t.Fatalf("railguard_grpc_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "railguard_grpc_request_duration_seconds", map[string]string{
		"service": "SimulationService",
		"method":  "GetState",
	}); count != 1 {
		t.Fatalf("railguard_grpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	collector, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/railguard.v1.SimulationService/AddTrain"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationService", "AddTrain", "InvalidArgument")); got != 1 {
		t.Fatalf("railguard_grpc_requests_total error label = %v, want 1", got)
	}
}

func TestFleetAndTickMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	collector.SetFleetCounts(7, 4)
	collector.ObserveTick(2*time.Millisecond, 0)
	collector.ObserveTick(3*time.Millisecond, 2)

	if got := testutil.ToFloat64(collector.Trains); got != 7 {
		t.Fatalf("railguard_trains = %v, want 7", got)
	}
	if got := testutil.ToFloat64(collector.TrainsDispatched); got != 4 {
		t.Fatalf("railguard_trains_dispatched = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.Ticks); got != 2 {
		t.Fatalf("railguard_ticks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SafetyViolations); got != 2 {
		t.Fatalf("railguard_safety_violations_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "railguard_tick_duration_seconds", nil); count != 2 {
		t.Fatalf("railguard_tick_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestCollectorReRegistrationReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}
	first.Ticks.Inc()
	if got := testutil.ToFloat64(second.Ticks); got != 1 {
		t.Fatalf("second collector ticks = %v, want shared counter at 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *SimCollector
	c.SetFleetCounts(1, 1)
	c.ObserveTick(time.Millisecond, 1)

	var r *RouteCollector
	r.ObserveRouteQuery(RouteOutcomeFound, time.Millisecond)
	r.IncCacheHit()
}

func TestRouteCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	rc, err := NewRouteCollector(reg)
	if err != nil {
		t.Fatalf("NewRouteCollector: %v", err)
	}

	rc.ObserveRouteQuery(RouteOutcomeFound, time.Millisecond)
	rc.ObserveRouteQuery(RouteOutcomeBlocked, time.Millisecond)
	rc.ObserveRouteQuery(RouteOutcomeFound, 0)
	rc.IncCacheHit()

	if got := testutil.ToFloat64(rc.Queries.WithLabelValues(RouteOutcomeFound)); got != 2 {
		t.Fatalf("found queries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(rc.CacheHits); got != 1 {
		t.Fatalf("cache hits = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "railguard_route_query_duration_seconds", nil); count != 2 {
		t.Fatalf("query duration samples = %d, want 2", count)
	}
}

func TestGinMiddlewareLabelsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	collector, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	r := gin.New()
	r.Use(collector.GinMiddleware())
	r.GET("/api/trains/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/api/trains/Local_1", "/api/trains/Local_2", "/nope"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/api/trains/:id", "404")); got != 2 {
		t.Fatalf("templated route count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("unmatched route count = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesFleetGauges(t *testing.T) {
	collector, err := NewSimCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	collector.SetFleetCounts(3, 2)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()

	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"railguard_grpc_requests_total",
		"railguard_trains 3",
		"railguard_trains_dispatched 2",
		"railguard_ticks_total",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"": {"unknown", "unknown"},
		"/railguard.v1.SimulationService/GetState": {"SimulationService", "GetState"},
		"/grpc.health.v1.Health/Check":             {"Health", "Check"},
		"bare":                                     {"unknown", "unknown"},
	}
	for in, want := range cases {
		svc, method := SplitMethod(in)
		if svc != want[0] || method != want[1] {
			t.Fatalf("SplitMethod(%q) = %s/%s, want %s/%s", in, svc, method, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
