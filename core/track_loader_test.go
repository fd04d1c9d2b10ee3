package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/signalsfoundry/railguard-simulator/kb"
)

func TestLoadDefaultTrackNetwork(t *testing.T) {
	base := kb.NewKnowledgeBase()
	summary, err := LoadDefaultTrackNetwork(base)
	if err != nil {
		t.Fatalf("LoadDefaultTrackNetwork() error = %v", err)
	}
	if summary.Nodes != 7 || summary.Edges != 7 {
		t.Fatalf("summary = %+v, want 7 nodes and 7 edges", summary)
	}
	if !base.HasSegment("Toranagallu", "Siding_Entry") {
		t.Fatalf("expected Siding_Entry-Toranagallu segment")
	}
}

func TestLoadTrackNetworkDefaultsBaseTime(t *testing.T) {
	const doc = `{
		"nodes": [{"name": "X", "type": "station"}, {"name": "Y", "type": "signal"}],
		"edges": [{"a": "X", "b": "Y", "distance_km": 3}]
	}`
	base := kb.NewKnowledgeBase()
	if _, err := LoadTrackNetwork(base, strings.NewReader(doc)); err != nil {
		t.Fatalf("LoadTrackNetwork() error = %v", err)
	}
	edges := base.ListEdges()
	if len(edges) != 1 || edges[0].BaseTimeMins != DefaultBaseTimeMins {
		t.Fatalf("edges = %+v, want base time %v", edges, DefaultBaseTimeMins)
	}
}

func TestLoadTrackNetworkErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want error
	}{
		{"bad json", `{"nodes": [`, nil},
		{"unknown field", `{"stations": []}`, nil},
		{"bad node type", `{"nodes": [{"name": "X", "type": "depot"}]}`, kb.ErrInvalidNode},
		{"dangling edge", `{"nodes": [{"name": "X", "type": "station"}], "edges": [{"a": "X", "b": "Y", "distance_km": 1}]}`, kb.ErrNodeNotFound},
		{"negative time", `{"nodes": [{"name": "X", "type": "station"}, {"name": "Y", "type": "station"}],
			"edges": [{"a": "X", "b": "Y", "distance_km": 1, "base_time_mins": -4}]}`, kb.ErrInvalidEdge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTrackNetwork(kb.NewKnowledgeBase(), strings.NewReader(tc.doc))
			if err == nil {
				t.Fatalf("LoadTrackNetwork() error = nil, want failure")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("LoadTrackNetwork() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoadTrackNetworkNilKB(t *testing.T) {
	if _, err := LoadTrackNetwork(nil, strings.NewReader(`{}`)); err == nil {
		t.Fatalf("LoadTrackNetwork(nil) error = nil")
	}
}
