package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/model"
)

// ErrInvalidSegment indicates an occupancy update names track that does not
// exist on the network.
var ErrInvalidSegment = errors.New("invalid track segment")

// OccupancySource supplies the segments currently considered blocked. It is
// maintained outside the kinematics engine, for example by signalling.
type OccupancySource interface {
	OccupiedTracks() []model.Segment
}

// SegmentValidator reports whether a-b is a real segment.
type SegmentValidator func(a, b string) bool

// OccupancyBoard is the in-process OccupancySource, updated through the API
// surfaces and configuration.
type OccupancyBoard struct {
	mu       sync.RWMutex
	blocked  map[model.SegmentKey]struct{}
	validate SegmentValidator
}

// NewOccupancyBoard returns an empty board. A nil validator accepts any
// non-degenerate segment.
func NewOccupancyBoard(validate SegmentValidator) *OccupancyBoard {
	return &OccupancyBoard{
		blocked:  make(map[model.SegmentKey]struct{}),
		validate: validate,
	}
}

// Block marks seg occupied. It reports whether the segment was newly added.
func (b *OccupancyBoard) Block(seg model.Segment) (bool, error) {
	if err := b.check(seg); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := seg.Key()
	if _, ok := b.blocked[key]; ok {
		return false, nil
	}
	b.blocked[key] = struct{}{}
	return true, nil
}

// Release clears seg. It reports whether the segment had been blocked.
func (b *OccupancyBoard) Release(seg model.Segment) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := seg.Key()
	if _, ok := b.blocked[key]; !ok {
		return false
	}
	delete(b.blocked, key)
	return true
}

// Replace swaps the whole occupancy for segs. Nothing changes if any
// segment is invalid.
func (b *OccupancyBoard) Replace(segs []model.Segment) error {
	for _, seg := range segs {
		if err := b.check(seg); err != nil {
			return err
		}
	}
	unique := lo.UniqBy(segs, func(s model.Segment) model.SegmentKey { return s.Key() })
	next := make(map[model.SegmentKey]struct{}, len(unique))
	for _, seg := range unique {
		next[seg.Key()] = struct{}{}
	}

	b.mu.Lock()
	b.blocked = next
	b.mu.Unlock()
	return nil
}

// OccupiedTracks lists blocked segments in canonical, sorted order.
func (b *OccupancyBoard) OccupiedTracks() []model.Segment {
	b.mu.RLock()
	out := make([]model.Segment, 0, len(b.blocked))
	for key := range b.blocked {
		out = append(out, model.Segment{A: key.Lo, B: key.Hi})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// Set returns the current occupancy as a planner input.
func (b *OccupancyBoard) Set() core.OccupancySet {
	return core.NewOccupancySet(b.OccupiedTracks()...)
}

func (b *OccupancyBoard) check(seg model.Segment) error {
	if seg.A == "" || seg.B == "" || seg.A == seg.B {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, seg.String())
	}
	if b.validate != nil && !b.validate(seg.A, seg.B) {
		return fmt.Errorf("%w: %q is not on the network", ErrInvalidSegment, seg.String())
	}
	return nil
}
