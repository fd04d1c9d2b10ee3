package core

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/signalsfoundry/railguard-simulator/model"
)

var (
	// ErrNoRoute is the root of every "no usable path" outcome. Callers should
	// treat it as an expected answer, not a failure.
	ErrNoRoute = errors.New("no route found")
	// ErrUnknownNode means the start or end node is not on the network.
	ErrUnknownNode = fmt.Errorf("%w: unknown node", ErrNoRoute)
	// ErrRouteBlocked means every path between the nodes crosses occupied track.
	ErrRouteBlocked = fmt.Errorf("%w: all routes cross occupied track", ErrNoRoute)
)

// Route is the cheapest path between two nodes.
type Route struct {
	Nodes         []string `json:"nodes"`
	TotalTimeMins float64  `json:"total_time_mins"`
	DistanceKm    float64  `json:"distance_km"`
}

// FindRoute returns the minimum-time path from start to end over network,
// with segments in occupied priced at BlockedCost. It never mutates its
// inputs.
func FindRoute(network model.TrackNetwork, occupied OccupancySet, start, end string) (Route, error) {
	names := make([]string, 0, len(network.Nodes))
	for _, n := range network.Nodes {
		names = append(names, n.Name)
	}
	sort.Strings(names)
	ids := make(map[string]int64, len(names))
	for i, name := range names {
		ids[name] = int64(i)
	}

	startID, ok := ids[start]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownNode, start)
	}
	endID, ok := ids[end]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownNode, end)
	}
	if start == end {
		return Route{Nodes: []string{start}}, nil
	}

	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for _, id := range ids {
		g.AddNode(simple.Node(id))
	}
	distances := make(map[model.SegmentKey]float64, len(network.Edges))
	for _, e := range EffectiveEdges(network, occupied) {
		from, okA := ids[e.A]
		to, okB := ids[e.B]
		if !okA || !okB || from == to {
			continue
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: e.TimeCost})
		distances[e.Segment().Key()] = e.DistanceKm
	}

	shortest := path.DijkstraFrom(g.Node(startID), g)
	nodes, cost := shortest.To(endID)
	if len(nodes) == 0 || math.IsInf(cost, 1) {
		return Route{}, fmt.Errorf("%w: %q to %q", ErrNoRoute, start, end)
	}
	if cost >= BlockedCost {
		return Route{}, fmt.Errorf("%w: %q to %q", ErrRouteBlocked, start, end)
	}

	route := Route{Nodes: make([]string, len(nodes)), TotalTimeMins: cost}
	for i, n := range nodes {
		route.Nodes[i] = names[n.ID()]
		if i > 0 {
			route.DistanceKm += distances[model.Segment{A: route.Nodes[i-1], B: route.Nodes[i]}.Key()]
		}
	}
	return route, nil
}
