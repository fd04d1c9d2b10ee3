package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives components read access to simulation time without
// depending on the concrete controller.
type SimClock interface {
	Now() time.Time
	Ticks() uint64
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time, one tick per Tick.
	RealTime Mode = iota
	// Accelerated steps by Tick as fast as listeners allow.
	Accelerated
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// Listener is called once per tick with the tick number (starting at 1)
// and the simulation time after the tick.
type Listener func(tick uint64, simTime time.Time)

// TimeController drives simulation time and notifies registered listeners.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	ticks       uint64

	listeners []Listener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Ticks returns how many ticks have completed.
func (tc *TimeController) Ticks() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.ticks
}

// SetTime moves simulation time without firing listeners.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// AddListener registers a callback invoked on every tick. Listeners run on
// the controller goroutine in registration order.
func (tc *TimeController) AddListener(fn Listener) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Run advances time until ctx is cancelled or maxTicks ticks have run
// (0 means no limit). It returns ctx.Err() on cancellation and nil when
// the tick budget is exhausted.
func (tc *TimeController) Run(ctx context.Context, maxTicks uint64) error {
	var wait <-chan time.Time
	if tc.Mode == RealTime {
		ticker := time.NewTicker(tc.Tick)
		defer ticker.Stop()
		wait = ticker.C
	}

	for n := uint64(0); maxTicks == 0 || n < maxTicks; n++ {
		if wait != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		tc.step()
	}
	return nil
}

// Start runs the controller in a separate goroutine. The returned channel
// is closed when Run returns.
func (tc *TimeController) Start(ctx context.Context, maxTicks uint64) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tc.Run(ctx, maxTicks)
	}()
	return done
}

func (tc *TimeController) step() {
	tc.mu.Lock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	tc.ticks++
	tick, simTime := tc.ticks, tc.currentTime
	listeners := append([]Listener(nil), tc.listeners...)
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(tick, simTime)
	}
}
