package core

import (
	"sort"

	"github.com/signalsfoundry/railguard-simulator/model"
)

// BlockedCost is the effective traversal cost of an occupied segment. It
// dominates any real route on the networks we load.
const BlockedCost = 9999.0

// OccupancySet is an immutable set of undirected segments that count as
// blocked for one planning query.
type OccupancySet struct {
	keys map[model.SegmentKey]struct{}
}

// NewOccupancySet builds a set from segs; direction and duplicates are
// ignored.
func NewOccupancySet(segs ...model.Segment) OccupancySet {
	keys := make(map[model.SegmentKey]struct{}, len(segs))
	for _, s := range segs {
		keys[s.Key()] = struct{}{}
	}
	return OccupancySet{keys: keys}
}

// Contains reports whether the segment a-b is blocked, in either direction.
func (o OccupancySet) Contains(a, b string) bool {
	_, ok := o.keys[model.Segment{A: a, B: b}.Key()]
	return ok
}

// Len returns the number of distinct blocked segments.
func (o OccupancySet) Len() int { return len(o.keys) }

// Segments lists the blocked segments in canonical, sorted order.
func (o OccupancySet) Segments() []model.Segment {
	out := make([]model.Segment, 0, len(o.keys))
	for k := range o.keys {
		out = append(out, model.Segment{A: k.Lo, B: k.Hi})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// EffectiveEdges returns copies of the network's edges with TimeCost set
// for this occupancy. The network is not modified.
func EffectiveEdges(network model.TrackNetwork, occupied OccupancySet) []model.TrackEdge {
	out := make([]model.TrackEdge, len(network.Edges))
	for i, e := range network.Edges {
		e.TimeCost = e.BaseTimeMins
		if occupied.Contains(e.A, e.B) {
			e.TimeCost = BlockedCost
		}
		out[i] = e
	}
	return out
}
