package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/railguard-simulator/model"
)

var (
	// ErrNodeExists indicates a track node with the same name is already stored.
	ErrNodeExists = errors.New("track node already exists")
	// ErrNodeNotFound indicates a referenced track node is missing.
	ErrNodeNotFound = errors.New("track node not found")
	// ErrInvalidNode indicates a node failed validation.
	ErrInvalidNode = errors.New("invalid track node")
	// ErrEdgeExists indicates the node pair is already connected.
	ErrEdgeExists = errors.New("track edge already exists")
	// ErrInvalidEdge indicates an edge failed validation.
	ErrInvalidEdge = errors.New("invalid track edge")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventEdgeAdded
)

// Event is emitted to subscribers when the topology changes.
type Event struct {
	Type    EventType
	Version uint64
	Node    model.TrackNode
	Edge    model.TrackEdge
}

// KnowledgeBase is an in-memory, thread-safe store for the static track graph.
type KnowledgeBase struct {
	mu sync.RWMutex

	nodes     map[string]model.TrackNode
	edges     map[model.SegmentKey]model.TrackEdge
	edgeOrder []model.SegmentKey

	// version increments on every topology change.
	version uint64

	subs []func(Event)
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		nodes: make(map[string]model.TrackNode),
		edges: make(map[model.SegmentKey]model.TrackEdge),
	}
}

// AddNode adds a new node. It returns an error if the name is taken or the
// node type is unknown.
func (kb *KnowledgeBase) AddNode(n model.TrackNode) error {
	if n.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidNode)
	}
	if !n.Type.Valid() {
		return fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidNode, n.Name, n.Type)
	}

	kb.mu.Lock()
	if _, exists := kb.nodes[n.Name]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeExists, n.Name)
	}
	kb.nodes[n.Name] = n
	kb.version++
	event := Event{Type: EventNodeAdded, Version: kb.version, Node: n}
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// AddEdge connects two existing nodes. Distances and base times must be
// non-negative and a node pair may only be connected once.
func (kb *KnowledgeBase) AddEdge(e model.TrackEdge) error {
	if e.A == e.B {
		return fmt.Errorf("%w: %q connects to itself", ErrInvalidEdge, e.A)
	}
	if e.DistanceKm < 0 || e.BaseTimeMins < 0 {
		return fmt.Errorf("%w: %q-%q has negative distance or time", ErrInvalidEdge, e.A, e.B)
	}
	e.TimeCost = 0

	kb.mu.Lock()
	for _, name := range []string{e.A, e.B} {
		if _, ok := kb.nodes[name]; !ok {
			kb.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
		}
	}
	key := e.Segment().Key()
	if _, exists := kb.edges[key]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q-%q", ErrEdgeExists, e.A, e.B)
	}
	kb.edges[key] = e
	kb.edgeOrder = append(kb.edgeOrder, key)
	kb.version++
	event := Event{Type: EventEdgeAdded, Version: kb.version, Edge: e}
	subs := append([]func(Event){}, kb.subs...)
	kb.mu.Unlock()

	notify(subs, event)
	return nil
}

// GetNode returns the node with the given name.
func (kb *KnowledgeBase) GetNode(name string) (model.TrackNode, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	n, ok := kb.nodes[name]
	return n, ok
}

// HasSegment reports whether a and b are directly connected, in either direction.
func (kb *KnowledgeBase) HasSegment(a, b string) bool {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	_, ok := kb.edges[model.Segment{A: a, B: b}.Key()]
	return ok
}

// ListNodes returns all nodes sorted by name.
func (kb *KnowledgeBase) ListNodes() []model.TrackNode {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.listNodesLocked()
}

// ListEdges returns all edges in insertion order.
func (kb *KnowledgeBase) ListEdges() []model.TrackEdge {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.listEdgesLocked()
}

// Network returns a value snapshot of the whole graph.
func (kb *KnowledgeBase) Network() model.TrackNetwork {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return model.TrackNetwork{
		Nodes: kb.listNodesLocked(),
		Edges: kb.listEdgesLocked(),
	}
}

// Version returns the topology version. It changes whenever a node or edge
// is added.
func (kb *KnowledgeBase) Version() uint64 {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.version
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.subs = append(kb.subs, fn)
	idx := len(kb.subs) - 1

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		if idx < 0 || idx >= len(kb.subs) {
			return
		}
		kb.subs = append(kb.subs[:idx], kb.subs[idx+1:]...)
		idx = -1
	}
}

func (kb *KnowledgeBase) listNodesLocked() []model.TrackNode {
	res := make([]model.TrackNode, 0, len(kb.nodes))
	for _, n := range kb.nodes {
		res = append(res, n)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func (kb *KnowledgeBase) listEdgesLocked() []model.TrackEdge {
	res := make([]model.TrackEdge, 0, len(kb.edgeOrder))
	for _, key := range kb.edgeOrder {
		res = append(res, kb.edges[key])
	}
	return res
}

// notify runs outside the lock so subscribers may call back into the KB.
func notify(subs []func(Event), event Event) {
	for _, sub := range subs {
		if sub != nil {
			sub(event)
		}
	}
}
