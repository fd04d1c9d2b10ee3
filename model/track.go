package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NodeType classifies a point on the network.
type NodeType string

const (
	NodeTypeStation  NodeType = "station"
	NodeTypeSignal   NodeType = "signal"
	NodeTypeJunction NodeType = "junction"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeStation, NodeTypeSignal, NodeTypeJunction:
		return true
	}
	return false
}

// TrackNode is a named point on the network.
type TrackNode struct {
	Name string   `json:"name"`
	Type NodeType `json:"type"`
}

// TrackEdge is an undirected stretch of track between two nodes.
//
// TimeCost is only populated on copies handed out for a single planning
// query; the knowledge base never stores it.
type TrackEdge struct {
	A            string  `json:"a"`
	B            string  `json:"b"`
	DistanceKm   float64 `json:"distance_km"`
	BaseTimeMins float64 `json:"base_time_mins"`
	TimeCost     float64 `json:"time_cost,omitempty"`
}

// Segment returns the node pair the edge connects.
func (e TrackEdge) Segment() Segment { return Segment{A: e.A, B: e.B} }

// Segment is an undirected node pair, used for occupancy. On the wire it
// is a two-element array, ["A", "B"]; the object form {"a": .., "b": ..} is
// also accepted on input.
type Segment struct {
	A string
	B string
}

// MarshalJSON implements json.Marshaler.
func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{s.A, s.B})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Segment) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var pair []string
		if err := json.Unmarshal(data, &pair); err != nil {
			return err
		}
		if len(pair) != 2 {
			return fmt.Errorf("segment must have 2 nodes, got %d", len(pair))
		}
		s.A, s.B = pair[0], pair[1]
		return nil
	}
	var obj struct {
		A string `json:"a"`
		B string `json:"b"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	s.A, s.B = obj.A, obj.B
	return nil
}

// String renders the segment as "A-B".
func (s Segment) String() string { return s.A + "-" + s.B }

// SegmentKey identifies a segment independent of direction.
type SegmentKey struct {
	Lo, Hi string
}

// Key returns the direction-independent key for s.
func (s Segment) Key() SegmentKey {
	if s.A <= s.B {
		return SegmentKey{Lo: s.A, Hi: s.B}
	}
	return SegmentKey{Lo: s.B, Hi: s.A}
}

// Canonical returns s with its endpoints in key order.
func (s Segment) Canonical() Segment {
	k := s.Key()
	return Segment{A: k.Lo, B: k.Hi}
}

// TrackNetwork is a value snapshot of the static track graph.
type TrackNetwork struct {
	Nodes []TrackNode `json:"nodes"`
	Edges []TrackEdge `json:"edges"`
}
