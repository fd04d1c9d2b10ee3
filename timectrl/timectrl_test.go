package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestAcceleratedRunStopsAfterBudget(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Accelerated)

	var seen []uint64
	var last time.Time
	tc.AddListener(func(tick uint64, simTime time.Time) {
		seen = append(seen, tick)
		last = simTime
	})

	if err := tc.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("listener ticks = %v, want [1 2 3]", seen)
	}
	want := start.Add(3 * time.Second)
	if !last.Equal(want) || !tc.Now().Equal(want) {
		t.Fatalf("sim time = %v / %v, want %v", last, tc.Now(), want)
	}
	if tc.Ticks() != 3 {
		t.Fatalf("Ticks() = %d, want 3", tc.Ticks())
	}
}

func TestRealTimeRunHonoursCancel(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Hour, RealTime)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tc.Run(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if tc.Ticks() != 0 {
		t.Fatalf("Ticks() = %d after cancelled run", tc.Ticks())
	}
}

func TestStartClosesDoneChannel(t *testing.T) {
	tc := NewTimeController(time.Now(), 2*time.Millisecond, RealTime)
	done := tc.Start(context.Background(), 2)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("controller did not finish")
	}
	if tc.Ticks() != 2 {
		t.Fatalf("Ticks() = %d, want 2", tc.Ticks())
	}
}

func TestModeString(t *testing.T) {
	if RealTime.String() != "realtime" || Accelerated.String() != "accelerated" {
		t.Fatalf("unexpected mode names %q %q", RealTime, Accelerated)
	}
}
