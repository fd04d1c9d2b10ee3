package dispatch

import (
	"context"
	"time"
)

// Schedule releases a sequence against simulation ticks rather than wall
// time: entry i is released on the first tick at which i*delay of
// simulated time has elapsed. Call Advance at the start of every tick.
type Schedule struct {
	d        *Dispatcher
	sequence []string
	every    uint64
	next     int
	res      Result
}

// NewSchedule converts delay into whole ticks of length tick, rounding up.
// A non-positive delay releases the whole sequence on the first tick.
func (d *Dispatcher) NewSchedule(sequence []string, tick time.Duration) *Schedule {
	var every uint64
	if d.delay > 0 && tick > 0 {
		every = uint64((d.delay + tick - 1) / tick)
	}
	return &Schedule{d: d, sequence: append([]string(nil), sequence...), every: every}
}

// Advance releases every entry due at tick (ticks start at 1) and returns
// the ids released by this call.
func (s *Schedule) Advance(ctx context.Context, tick uint64) []string {
	if tick == 0 {
		return nil
	}
	before := len(s.res.Released)
	for s.next < len(s.sequence) && uint64(s.next)*s.every <= tick-1 {
		s.d.release(ctx, s.sequence[s.next], s.next, len(s.sequence), &s.res)
		s.next++
	}
	return s.res.Released[before:]
}

// Done reports whether the whole sequence has been handled.
func (s *Schedule) Done() bool { return s.next >= len(s.sequence) }

// Result returns what has been released and skipped so far.
func (s *Schedule) Result() Result {
	return Result{
		Released: append([]string(nil), s.res.Released...),
		Skipped:  append([]string(nil), s.res.Skipped...),
	}
}
