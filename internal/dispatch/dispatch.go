// Package dispatch releases held trains in a caller-supplied order.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
)

// Releaser flips a train's dispatched flag.
type Releaser interface {
	SetDispatched(id string) (bool, error)
}

// Result summarises one dispatch run.
type Result struct {
	Released []string
	Skipped  []string
}

// Dispatcher releases trains one at a time with a fixed delay between
// releases. Priority is never consulted; order is exactly the sequence.
type Dispatcher struct {
	fleet Releaser
	delay time.Duration
	log   logging.Logger
	after func(time.Duration) <-chan time.Time
}

// New constructs a dispatcher.
func New(fleet Releaser, delay time.Duration, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Noop()
	}
	return &Dispatcher{fleet: fleet, delay: delay, log: log, after: time.After}
}

// Run releases each id in sequence, waiting the configured delay after every
// release except the last. Unknown or already dispatched ids are skipped.
// It returns ctx.Err() if cancelled while waiting.
func (d *Dispatcher) Run(ctx context.Context, sequence []string) (Result, error) {
	var res Result
	for i, id := range sequence {
		d.release(ctx, id, i, len(sequence), &res)

		if i == len(sequence)-1 || d.delay <= 0 {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			continue
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-d.after(d.delay):
		}
	}
	return res, nil
}

// Start runs the sequence in its own goroutine. The returned channel
// receives the result once the run ends.
func (d *Dispatcher) Start(ctx context.Context, sequence []string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		res, err := d.Run(ctx, sequence)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.Warn(ctx, "dispatch run stopped", logging.Err(err))
		}
		out <- res
	}()
	return out
}

func (d *Dispatcher) release(ctx context.Context, id string, i, total int, res *Result) {
	changed, err := d.fleet.SetDispatched(id)
	switch {
	case errors.Is(err, state.ErrTrainNotFound):
		d.log.Warn(ctx, "dispatch skipped: unknown train", logging.TrainID(id))
		res.Skipped = append(res.Skipped, id)
	case err != nil:
		d.log.Error(ctx, "dispatch failed", logging.TrainID(id), logging.Err(err))
		res.Skipped = append(res.Skipped, id)
	case !changed:
		d.log.Debug(ctx, "dispatch skipped: already dispatched", logging.TrainID(id))
		res.Skipped = append(res.Skipped, id)
	default:
		d.log.Info(ctx, "train dispatched",
			logging.TrainID(id),
			logging.Int("position", i+1),
			logging.Int("of", total),
		)
		res.Released = append(res.Released, id)
	}
}
