package routing

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/observability"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *kb.KnowledgeBase, *state.OccupancyBoard) {
	t.Helper()
	base := kb.NewKnowledgeBase()
	if _, err := core.LoadDefaultTrackNetwork(base); err != nil {
		t.Fatalf("LoadDefaultTrackNetwork() error = %v", err)
	}
	board := state.NewOccupancyBoard(base.HasSegment)
	svc := NewService(base, board, logging.Noop(), opts...)
	t.Cleanup(svc.Close)
	return svc, base, board
}

func TestFindRouteFollowsOccupancy(t *testing.T) {
	svc, _, board := newTestService(t)
	ctx := context.Background()

	answer := svc.FindRoute(ctx, "Ballari Junction", "Toranagallu")
	if answer.Err != nil || answer.Route == nil {
		t.Fatalf("FindRoute() = %+v", answer)
	}
	if want := []string{"Ballari Junction", "Signal_BLR_1", "Toranagallu"}; !reflect.DeepEqual(answer.Route.Nodes, want) {
		t.Fatalf("route = %v, want %v", answer.Route.Nodes, want)
	}

	if _, err := board.Block(model.Segment{A: "Ballari Junction", B: "Signal_BLR_1"}); err != nil {
		t.Fatalf("Block() error = %v", err)
	}
	answer = svc.FindRoute(ctx, "Ballari Junction", "Toranagallu")
	if answer.Err != nil || answer.Cached {
		t.Fatalf("FindRoute() after block = %+v", answer)
	}
	if want := []string{"Ballari Junction", "Siding_Entry", "Toranagallu"}; !reflect.DeepEqual(answer.Route.Nodes, want) {
		t.Fatalf("route = %v, want %v", answer.Route.Nodes, want)
	}
	if len(answer.Blocked) != 1 {
		t.Fatalf("Blocked = %v, want one segment", answer.Blocked)
	}
}

func TestFindRouteWithExplicitSnapshot(t *testing.T) {
	svc, _, _ := newTestService(t)

	answer := svc.FindRouteWith(context.Background(), "Ballari Junction", "Toranagallu", []model.Segment{
		{A: "Signal_BLR_1", B: "Ballari Junction"},
		{A: "Siding_Entry", B: "Ballari Junction"},
	})
	if !errors.Is(answer.Err, core.ErrRouteBlocked) || answer.Route != nil {
		t.Fatalf("FindRouteWith() = %+v, want ErrRouteBlocked", answer)
	}
}

func TestCacheHitsAndTopologyInvalidation(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := observability.NewRouteCollector(reg)
	if err != nil {
		t.Fatalf("NewRouteCollector() error = %v", err)
	}
	svc, base, _ := newTestService(t, WithCache(16, time.Minute), WithMetrics(metrics))
	ctx := context.Background()

	first := svc.FindRoute(ctx, "Kudligi", "Hosapete")
	second := svc.FindRoute(ctx, "Kudligi", "Hosapete")
	if first.Cached || !second.Cached {
		t.Fatalf("cached flags = %v/%v, want false/true", first.Cached, second.Cached)
	}
	if !reflect.DeepEqual(first.Route, second.Route) {
		t.Fatalf("cached route differs: %v vs %v", first.Route, second.Route)
	}
	second.Route.Nodes[0] = "tampered"
	if third := svc.FindRoute(ctx, "Kudligi", "Hosapete"); third.Route.Nodes[0] != "Kudligi" {
		t.Fatalf("cache entry was mutated through an answer")
	}

	if err := base.AddNode(model.TrackNode{Name: "Bypass", Type: model.NodeTypeJunction}); err != nil {
		t.Fatalf("AddNode() error = %v", err)
	}
	if after := svc.FindRoute(ctx, "Kudligi", "Hosapete"); after.Cached {
		t.Fatalf("topology change should invalidate the cache")
	}

	if got := testutil.ToFloat64(metrics.CacheHits); got != 2 {
		t.Fatalf("cache hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.Queries.WithLabelValues(observability.RouteOutcomeFound)); got != 4 {
		t.Fatalf("found queries = %v, want 4", got)
	}
}

func TestUnknownNodeOutcome(t *testing.T) {
	svc, _, _ := newTestService(t, WithCache(0, 0))

	answer := svc.FindRoute(context.Background(), "Nowhere", "Kudligi")
	if !errors.Is(answer.Err, core.ErrUnknownNode) {
		t.Fatalf("FindRoute() err = %v, want ErrUnknownNode", answer.Err)
	}
	if outcome(answer.Err) != observability.RouteOutcomeUnknownNode {
		t.Fatalf("outcome = %s", outcome(answer.Err))
	}
}

func TestTrackReportsEffectiveCosts(t *testing.T) {
	svc, _, board := newTestService(t)
	if _, err := board.Block(model.Segment{A: "Hosapete", B: "Toranagallu"}); err != nil {
		t.Fatalf("Block() error = %v", err)
	}

	network, occupied := svc.Track()
	if len(network.Nodes) != 7 || len(network.Edges) != 7 || len(occupied) != 1 {
		t.Fatalf("Track() = %d nodes, %d edges, %d occupied", len(network.Nodes), len(network.Edges), len(occupied))
	}
	for _, e := range network.Edges {
		if e.A == "Toranagallu" && e.B == "Hosapete" && e.TimeCost != core.BlockedCost {
			t.Fatalf("blocked edge cost = %v", e.TimeCost)
		}
	}
}
