package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/model"
)

func TestRenderStrip(t *testing.T) {
	trains := []model.Train{
		{ID: "Goods_1", PositionKm: 0},
		{ID: "Express_1", PositionKm: 2.55},
		{ID: "Local_1", PositionKm: 2.58},
		{ID: "Local_2", PositionKm: 42},
	}
	strip := renderStrip(trains)

	if len([]rune(strip)) != stripChars {
		t.Fatalf("strip length = %d, want %d", len([]rune(strip)), stripChars)
	}
	if strip[0] != 'G' {
		t.Fatalf("strip[0] = %q, want G", strip[0])
	}
	if strip[25] != '*' {
		t.Fatalf("strip[25] = %q, want * for two trains in one cell", strip[25])
	}
	if strip[stripChars-1] != 'L' {
		t.Fatalf("strip end = %q, want L for a train beyond the window", strip[stripChars-1])
	}
	if got := strings.Count(strip, "."); got != stripChars-3 {
		t.Fatalf("empty cells = %d, want %d", got, stripChars-3)
	}
}

func TestRenderFrameReportsAlerts(t *testing.T) {
	snap := state.Snapshot{
		Tick: 3,
		Trains: map[string]model.Train{
			"Express_1": {ID: "Express_1", PositionKm: 0.5, SpeedKmh: 30, Dispatched: true},
			"Goods_1":   {ID: "Goods_1", PositionKm: 0},
		},
	}
	var buf bytes.Buffer
	renderFrame(&buf, 3, snap, []core.SafetyViolation{{FollowerID: "Goods_1", LeaderID: "Express_1", RequiredM: 243.4, ActualM: 100}})

	out := buf.String()
	for _, want := range []string{"tick 3", "Goods_1", "(held)", "SAFETY ALERT: Goods_1 has breached the safety bubble of Express_1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("frame missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Goods_1") > strings.Index(out, "Express_1") {
		t.Fatalf("status rows not ordered by position:\n%s", out)
	}
}

func TestRunDispatchesRosterInOrder(t *testing.T) {
	var buf bytes.Buffer
	sum, err := run(context.Background(), options{
		Ticks:         30,
		Tick:          time.Second,
		Roster:        []model.Category{model.CategoryExpress, model.CategoryGoods},
		SpacingKm:     0.5,
		DispatchDelay: 2 * time.Second,
		Accelerated:   true,
	}, &buf, logging.Noop())
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if sum.Ticks != 30 {
		t.Fatalf("ticks = %d, want 30", sum.Ticks)
	}
	if len(sum.Released) != 2 || sum.Released[0] != "Express_1" || sum.Released[1] != "Goods_1" {
		t.Fatalf("released = %v, want [Express_1 Goods_1]", sum.Released)
	}

	lead := sum.Final.Trains["Express_1"]
	if lead.PositionKm <= 0.5 {
		t.Fatalf("lead train did not move: %+v", lead)
	}
	if got := strings.Count(buf.String(), "--- RAILGUARD TRAFFIC SIMULATION ---"); got != 30 {
		t.Fatalf("frames = %d, want 30", got)
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	if _, err := run(context.Background(), options{Tick: 0}, &bytes.Buffer{}, logging.Noop()); err == nil {
		t.Fatalf("run() with zero tick error = nil")
	}
	if _, err := run(context.Background(), options{Tick: time.Second, SpacingKm: -1}, &bytes.Buffer{}, logging.Noop()); err == nil {
		t.Fatalf("run() with negative spacing error = nil")
	}
}
