// Package routing answers route queries against the live track network and
// the current occupancy.
package routing

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/observability"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
)

const (
	// DefaultCacheSize bounds the number of cached answers.
	DefaultCacheSize = 256
	// DefaultCacheTTL expires cached answers even if nothing changed.
	DefaultCacheTTL = 30 * time.Second
)

// MetricsRecorder receives per-query observations.
type MetricsRecorder interface {
	ObserveRouteQuery(outcome string, d time.Duration)
	IncCacheHit()
}

// Answer is a route query result. Route is nil when no usable path exists;
// Err then carries the reason (always errors.Is core.ErrNoRoute).
type Answer struct {
	Start   string
	End     string
	Route   *core.Route
	Err     error
	Blocked []model.Segment
	Cached  bool
}

// Service plans routes over the knowledge base. It holds no registry lock;
// occupancy is copied out of the source before planning.
type Service struct {
	kb        *kb.KnowledgeBase
	occupancy state.OccupancySource
	log       logging.Logger
	metrics   MetricsRecorder

	cacheSize int
	cacheTTL  time.Duration
	cache     gcache.Cache

	unsubscribe func()
}

// Option customises a Service.
type Option func(*Service)

// WithCache sets the route cache size and TTL. A size of zero disables it.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) {
		s.cacheSize = size
		s.cacheTTL = ttl
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService builds a routing service. The cache is flushed whenever the
// knowledge base topology changes; call Close to detach.
func NewService(base *kb.KnowledgeBase, occupancy state.OccupancySource, log logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.Noop()
	}
	if occupancy == nil {
		occupancy = state.NewOccupancyBoard(nil)
	}
	s := &Service{
		kb:        base,
		occupancy: occupancy,
		log:       log,
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.cacheSize > 0 {
		builder := gcache.New(s.cacheSize).LRU()
		if s.cacheTTL > 0 {
			builder = builder.Expiration(s.cacheTTL)
		}
		s.cache = builder.Build()
		s.unsubscribe = base.Subscribe(func(kb.Event) { s.cache.Purge() })
	}
	return s
}

// Close detaches the service from knowledge base events.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// FindRoute plans start -> end against the current occupancy.
func (s *Service) FindRoute(ctx context.Context, start, end string) Answer {
	return s.FindRouteWith(ctx, start, end, s.occupancy.OccupiedTracks())
}

// FindRouteWith plans start -> end treating occupied as the blocked set.
func (s *Service) FindRouteWith(ctx context.Context, start, end string, occupied []model.Segment) Answer {
	ctx, span := observability.StartSpan(ctx, "routing.FindRoute",
		attribute.String("route.start", start),
		attribute.String("route.end", end),
		attribute.Int("route.blocked_segments", len(occupied)),
	)
	defer span.End()

	occ := core.NewOccupancySet(occupied...)
	answer := Answer{Start: start, End: end, Blocked: occ.Segments()}

	key := cacheKey(start, end, s.kb.Version(), answer.Blocked)
	if s.cache != nil {
		if v, err := s.cache.Get(key); err == nil {
			if entry, ok := v.(cacheEntry); ok {
				entry.apply(&answer)
				answer.Cached = true
				if s.metrics != nil {
					s.metrics.IncCacheHit()
					s.metrics.ObserveRouteQuery(outcome(answer.Err), 0)
				}
				span.SetAttributes(attribute.Bool("route.cached", true), attribute.String("route.outcome", outcome(answer.Err)))
				return answer
			}
		}
	}

	began := time.Now()
	route, err := core.FindRoute(s.kb.Network(), occ, start, end)
	elapsed := time.Since(began)

	entry := cacheEntry{err: err}
	if err == nil {
		entry.route = &route
	}
	entry.apply(&answer)
	if s.cache != nil {
		if cerr := s.cache.Set(key, entry); cerr != nil {
			s.log.Debug(ctx, "route cache set failed", logging.Err(cerr))
		}
	}

	result := outcome(err)
	if s.metrics != nil {
		s.metrics.ObserveRouteQuery(result, elapsed)
	}
	span.SetAttributes(attribute.Bool("route.cached", false), attribute.String("route.outcome", result))
	if err != nil {
		span.SetAttributes(attribute.String("route.reason", err.Error()))
		s.log.Debug(ctx, "no route",
			logging.String("start", start),
			logging.String("end", end),
			logging.Err(err),
		)
	}
	return answer
}

// Track returns the network nodes and edges with effective costs under the
// current occupancy.
func (s *Service) Track() (model.TrackNetwork, []model.Segment) {
	occupied := s.occupancy.OccupiedTracks()
	network := s.kb.Network()
	network.Edges = core.EffectiveEdges(network, core.NewOccupancySet(occupied...))
	return network, occupied
}

type cacheEntry struct {
	route *core.Route
	err   error
}

func (e cacheEntry) apply(a *Answer) {
	a.Err = e.err
	a.Route = nil
	if e.route != nil {
		r := *e.route
		r.Nodes = append([]string(nil), e.route.Nodes...)
		a.Route = &r
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return observability.RouteOutcomeFound
	case errors.Is(err, core.ErrUnknownNode):
		return observability.RouteOutcomeUnknownNode
	case errors.Is(err, core.ErrRouteBlocked):
		return observability.RouteOutcomeBlocked
	default:
		return observability.RouteOutcomeNoRoute
	}
}

func cacheKey(start, end string, version uint64, blocked []model.Segment) string {
	var b strings.Builder
	b.WriteString(start)
	b.WriteByte(0)
	b.WriteString(end)
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(version, 10))
	for _, seg := range blocked {
		b.WriteByte(0)
		b.WriteString(seg.A)
		b.WriteByte(1)
		b.WriteString(seg.B)
	}
	return b.String()
}
