// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/model"
)

var (
	// ErrTrainNotFound indicates a requested train id is not registered.
	ErrTrainNotFound = errors.New("train not found")
	// ErrInvalidTrain is re-exported so callers can depend on state.* only.
	ErrInvalidTrain = model.ErrInvalidTrain
)

// FleetState is the train registry. Every read and write happens under one
// exclusive lock, and callers only ever receive copies.
type FleetState struct {
	// mu guards trains and tick. Nothing blocking runs while it is held.
	mu     sync.Mutex
	trains map[string]*model.Train
	tick   uint64

	occupancy OccupancySource
	log       logging.Logger
	metrics   FleetMetricsRecorder

	subsMu  sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// Snapshot is a lock-consistent copy of the registry.
type Snapshot struct {
	Tick           uint64                 `json:"tick"`
	Trains         map[string]model.Train `json:"trains"`
	OccupiedTracks []model.Segment        `json:"occupied_tracks"`
}

// FleetMetricsRecorder receives fleet counts and tick observations.
type FleetMetricsRecorder interface {
	SetFleetCounts(trains, dispatched int)
	ObserveTick(d time.Duration, violations int)
}

// FleetStateOption customises FleetState construction.
type FleetStateOption func(*FleetState)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m FleetMetricsRecorder) FleetStateOption {
	return func(s *FleetState) {
		s.metrics = m
	}
}

// NewFleetState builds an empty registry. occupancy supplies the blocked
// segments reported in snapshots; a nil source is replaced by an empty
// OccupancyBoard.
func NewFleetState(occupancy OccupancySource, log logging.Logger, opts ...FleetStateOption) *FleetState {
	if log == nil {
		log = logging.Noop()
	}
	if occupancy == nil {
		log.Warn(context.Background(), "no occupancy source configured; occupied tracks will stay empty")
		occupancy = NewOccupancyBoard(nil)
	}
	s := &FleetState{
		trains:    make(map[string]*model.Train),
		occupancy: occupancy,
		log:       log,
		subs:      make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.mu.Lock()
	s.updateMetricsLocked()
	s.mu.Unlock()
	return s
}

// Occupancy returns the configured occupancy source.
func (s *FleetState) Occupancy() OccupancySource {
	return s.occupancy
}

// AddTrain validates spec, assigns the id and inserts the train. The id is
// the requested prefix (the category prefix by default) followed by the
// smallest positive integer not already in use.
func (s *FleetState) AddTrain(spec model.TrainSpec) (model.Train, error) {
	train, err := spec.Build()
	if err != nil {
		return model.Train{}, err
	}
	prefix := spec.Prefix(train.Category)

	s.mu.Lock()
	for n := 1; ; n++ {
		candidate := prefix + strconv.Itoa(n)
		if _, taken := s.trains[candidate]; !taken {
			train.ID = candidate
			break
		}
	}
	stored := train
	s.trains[train.ID] = &stored
	s.updateMetricsLocked()
	s.mu.Unlock()

	s.log.Info(context.Background(), "train added",
		logging.TrainID(train.ID),
		logging.String("category", string(train.Category)),
		logging.Float64("max_speed_kmh", train.MaxSpeedKmh),
		logging.Bool("dispatched", train.Dispatched),
	)
	return train, nil
}

// SetDispatched releases the train. It reports whether the flag changed;
// repeated calls are no-ops. Unknown ids return ErrTrainNotFound and leave
// the registry untouched.
func (s *FleetState) SetDispatched(id string) (bool, error) {
	s.mu.Lock()
	tr, ok := s.trains[id]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %q", ErrTrainNotFound, id)
	}
	if tr.Dispatched {
		s.mu.Unlock()
		return false, nil
	}
	tr.Dispatched = true
	s.updateMetricsLocked()
	s.mu.Unlock()
	return true, nil
}

// Train returns a copy of the train with the given id.
func (s *FleetState) Train(id string) (model.Train, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.trains[id]
	if !ok {
		return model.Train{}, fmt.Errorf("%w: %q", ErrTrainNotFound, id)
	}
	return *tr, nil
}

// Len returns the number of registered trains.
func (s *FleetState) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trains)
}

// Snapshot returns a deep copy of the registry plus the current occupancy.
func (s *FleetState) Snapshot() Snapshot {
	occupied := s.occupiedTracks()

	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	snap.OccupiedTracks = occupied
	return snap
}

// Advance applies one engine tick under the lock, then logs safety
// violations and notifies subscribers with the post-tick snapshot.
func (s *FleetState) Advance(ctx context.Context, engine *core.Engine) core.StepReport {
	start := time.Now()

	s.mu.Lock()
	report := engine.Step(lo.Values(s.trains))
	s.tick++
	snap := s.snapshotLocked()
	s.updateMetricsLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveTick(time.Since(start), len(report.Violations))
	}
	for _, v := range report.Violations {
		s.log.Warn(ctx, "safety bubble breached",
			logging.Tick(snap.Tick),
			logging.String("follower_id", v.FollowerID),
			logging.String("leader_id", v.LeaderID),
			logging.Float64("required_m", v.RequiredM),
			logging.Float64("actual_m", v.ActualM),
		)
	}

	snap.OccupiedTracks = s.occupiedTracks()
	s.publish(snap)
	return report
}

// Subscribe registers fn to receive the snapshot published after every
// tick. fn runs on the ticking goroutine and must not block.
func (s *FleetState) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *FleetState) publish(snap Snapshot) {
	s.subsMu.Lock()
	subs := lo.Values(s.subs)
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *FleetState) occupiedTracks() []model.Segment {
	occupied := s.occupancy.OccupiedTracks()
	if occupied == nil {
		occupied = []model.Segment{}
	}
	return occupied
}

func (s *FleetState) snapshotLocked() Snapshot {
	return Snapshot{
		Tick: s.tick,
		Trains: lo.MapValues(s.trains, func(tr *model.Train, _ string) model.Train {
			return *tr
		}),
	}
}

func (s *FleetState) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	dispatched := lo.CountBy(lo.Values(s.trains), func(tr *model.Train) bool {
		return tr.Dispatched
	})
	s.metrics.SetFleetCounts(len(s.trains), dispatched)
}
