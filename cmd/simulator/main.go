package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/config"
	"github.com/signalsfoundry/railguard-simulator/internal/dispatch"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/model"
	"github.com/signalsfoundry/railguard-simulator/timectrl"
)

const (
	stripChars = 100
	windowKm   = 10.0
	clearANSI  = "\033[H\033[2J"
)

type options struct {
	Ticks         uint64
	Tick          time.Duration
	Roster        []model.Category
	SpacingKm     float64
	DispatchDelay time.Duration
	Accelerated   bool
	Clear         bool
}

type summary struct {
	Ticks      uint64
	Violations int
	Released   []string
	Final      state.Snapshot
}

func main() {
	ticks := flag.Uint64("ticks", 120, "number of ticks to simulate")
	tick := flag.Duration("tick", time.Second, "tick interval")
	roster := flag.String("roster", "express,local,local,goods,express,goods,goods", "comma-separated train categories, lead train first")
	spacing := flag.Float64("spacing-km", 0.5, "initial gap between consecutive roster trains")
	delay := flag.Duration("dispatch-delay", 2*time.Second, "simulation time between dispatches")
	accelerated := flag.Bool("accelerated", true, "run as fast as possible instead of in real time")
	clear := flag.Bool("clear", false, "clear the terminal before each frame")
	flag.Parse()

	log := logging.NewFromEnv()
	categories, err := config.ParseRoster(*roster)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: -roster: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sum, err := run(ctx, options{
		Ticks:         *ticks,
		Tick:          *tick,
		Roster:        categories,
		SpacingKm:     *spacing,
		DispatchDelay: *delay,
		Accelerated:   *accelerated,
		Clear:         *clear,
	}, os.Stdout, log)
	if err != nil && ctx.Err() == nil {
		log.Error(context.Background(), "simulation failed", logging.Err(err))
		os.Exit(1)
	}
	log.Info(context.Background(), "simulation finished",
		logging.Uint64("ticks", sum.Ticks),
		logging.Int("safety_alerts", sum.Violations),
		logging.Int("dispatched", len(sum.Released)),
	)
}

// run simulates the roster on a single line and renders one frame per tick.
func run(ctx context.Context, opts options, out io.Writer, log logging.Logger) (summary, error) {
	if opts.Tick <= 0 {
		return summary{}, fmt.Errorf("tick must be positive, got %s", opts.Tick)
	}
	if opts.SpacingKm < 0 {
		return summary{}, fmt.Errorf("spacing must not be negative, got %g", opts.SpacingKm)
	}

	fleet := state.NewFleetState(state.NewOccupancyBoard(nil), log)
	ids, err := placeRoster(fleet, opts.Roster, opts.SpacingKm)
	if err != nil {
		return summary{}, err
	}

	mode := timectrl.RealTime
	if opts.Accelerated {
		mode = timectrl.Accelerated
	}
	clock := timectrl.NewTimeController(time.Now(), opts.Tick, mode)
	engine := core.NewEngine()
	engine.TickSeconds = opts.Tick.Seconds()

	schedule := dispatch.New(fleet, opts.DispatchDelay, log).NewSchedule(ids, opts.Tick)

	var sum summary
	clock.AddListener(func(tick uint64, _ time.Time) {
		schedule.Advance(ctx, tick)
		report := fleet.Advance(ctx, engine)
		sum.Violations += len(report.Violations)
		if opts.Clear {
			fmt.Fprint(out, clearANSI)
		}
		renderFrame(out, tick, fleet.Snapshot(), report.Violations)
	})

	err = clock.Run(ctx, opts.Ticks)

	sum.Ticks = clock.Ticks()
	sum.Released = schedule.Result().Released
	sum.Final = fleet.Snapshot()
	return sum, err
}

// placeRoster creates the roster held on the line, lead train first, each
// spacingKm behind the one before. It returns the ids in roster order.
func placeRoster(fleet *state.FleetState, roster []model.Category, spacingKm float64) ([]string, error) {
	held := false
	ids := make([]string, 0, len(roster))
	for i, c := range roster {
		train, err := fleet.AddTrain(model.TrainSpec{
			Category:    c,
			MaxSpeedKmh: model.DefaultMaxSpeedKmh,
			PositionKm:  float64(len(roster)-1-i) * spacingKm,
			Dispatched:  &held,
		})
		if err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", i+1, err)
		}
		ids = append(ids, train.ID)
	}
	return ids, nil
}

func renderFrame(w io.Writer, tick uint64, snap state.Snapshot, violations []core.SafetyViolation) {
	trains := sortedTrains(snap)
	rule := strings.Repeat("-", stripChars)

	fmt.Fprintln(w, "--- RAILGUARD TRAFFIC SIMULATION ---")
	fmt.Fprintf(w, "tick %d\n", tick)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, renderStrip(trains))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "STATUS:")
	for _, t := range trains {
		held := ""
		if !t.Dispatched {
			held = " (held)"
		}
		fmt.Fprintf(w, "  > %-10s pos %6.2f km | speed %6.2f km/h%s\n", t.ID, t.PositionKm, t.SpeedKmh, held)
	}
	for _, v := range violations {
		fmt.Fprintf(w, "SAFETY ALERT: %s has breached the safety bubble of %s (required %.2fm, actual %.2fm)\n",
			v.FollowerID, v.LeaderID, v.RequiredM, v.ActualM)
	}
}

// renderStrip maps trains onto a fixed-width strip covering the first
// windowKm of line. Each train shows the first letter of its id; cells
// holding more than one train show '*'.
func renderStrip(trains []model.Train) string {
	cells := []rune(strings.Repeat(".", stripChars))
	for _, t := range trains {
		i := int(t.PositionKm / windowKm * stripChars)
		if i < 0 {
			i = 0
		}
		if i > stripChars-1 {
			i = stripChars - 1
		}
		icon := '?'
		if t.ID != "" {
			icon = []rune(t.ID)[0]
		}
		if cells[i] == '.' {
			cells[i] = icon
		} else {
			cells[i] = '*'
		}
	}
	return string(cells)
}

func sortedTrains(snap state.Snapshot) []model.Train {
	trains := lo.Values(snap.Trains)
	sort.Slice(trains, func(i, j int) bool {
		if trains[i].PositionKm != trains[j].PositionKm {
			return trains[i].PositionKm < trains[j].PositionKm
		}
		return trains[i].ID < trains[j].ID
	})
	return trains
}
