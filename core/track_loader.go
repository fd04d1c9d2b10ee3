package core

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
)

// DefaultBaseTimeMins is used for edges that omit base_time_mins.
const DefaultBaseTimeMins = 20.0

//go:embed networks/ballari.json
var ballariNetwork []byte

// TrackSummary is a small summary of what was loaded, mainly for logging.
type TrackSummary struct {
	Name  string
	Nodes int
	Edges int
}

// internal JSON shapes; unexported so the file format can evolve.
type trackFileJSON struct {
	Name  string          `json:"name"`
	Nodes []trackNodeJSON `json:"nodes"`
	Edges []trackEdgeJSON `json:"edges"`
}

type trackNodeJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type trackEdgeJSON struct {
	A            string   `json:"a"`
	B            string   `json:"b"`
	DistanceKm   float64  `json:"distance_km"`
	BaseTimeMins *float64 `json:"base_time_mins"` // optional; defaults to DefaultBaseTimeMins
}

// LoadTrackNetwork reads a JSON track definition from r and adds its nodes
// and edges to the knowledge base. Nodes are added before edges so edges
// may reference nodes in any order within the file.
func LoadTrackNetwork(base *kb.KnowledgeBase, r io.Reader) (*TrackSummary, error) {
	if base == nil {
		return nil, fmt.Errorf("LoadTrackNetwork: kb is nil")
	}

	var payload trackFileJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadTrackNetwork: decode failed: %w", err)
	}
	return loadPayload(base, payload)
}

// LoadTrackNetworkFile is LoadTrackNetwork over a file on disk.
func LoadTrackNetworkFile(base *kb.KnowledgeBase, path string) (*TrackSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTrackNetworkFile: %w", err)
	}
	defer f.Close()
	return LoadTrackNetwork(base, f)
}

// LoadDefaultTrackNetwork loads the built-in Ballari network.
func LoadDefaultTrackNetwork(base *kb.KnowledgeBase) (*TrackSummary, error) {
	return LoadTrackNetwork(base, bytes.NewReader(ballariNetwork))
}

// DefaultTrackNetwork returns the built-in network without a knowledge base.
func DefaultTrackNetwork() (model.TrackNetwork, error) {
	base := kb.NewKnowledgeBase()
	if _, err := LoadDefaultTrackNetwork(base); err != nil {
		return model.TrackNetwork{}, err
	}
	return base.Network(), nil
}

func loadPayload(base *kb.KnowledgeBase, payload trackFileJSON) (*TrackSummary, error) {
	for _, n := range payload.Nodes {
		node := model.TrackNode{Name: n.Name, Type: model.NodeType(n.Type)}
		if err := base.AddNode(node); err != nil {
			return nil, fmt.Errorf("LoadTrackNetwork: node %q: %w", n.Name, err)
		}
	}
	for _, e := range payload.Edges {
		baseTime := DefaultBaseTimeMins
		if e.BaseTimeMins != nil {
			baseTime = *e.BaseTimeMins
		}
		edge := model.TrackEdge{A: e.A, B: e.B, DistanceKm: e.DistanceKm, BaseTimeMins: baseTime}
		if err := base.AddEdge(edge); err != nil {
			return nil, fmt.Errorf("LoadTrackNetwork: edge %s-%s: %w", e.A, e.B, err)
		}
	}
	return &TrackSummary{Name: payload.Name, Nodes: len(payload.Nodes), Edges: len(payload.Edges)}, nil
}
