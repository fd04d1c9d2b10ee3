package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/lo"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/api"
	"github.com/signalsfoundry/railguard-simulator/internal/config"
	"github.com/signalsfoundry/railguard-simulator/internal/dispatch"
	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/nbi"
	"github.com/signalsfoundry/railguard-simulator/internal/observability"
	"github.com/signalsfoundry/railguard-simulator/internal/routing"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/internal/trackstore"
	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
	"github.com/signalsfoundry/railguard-simulator/timectrl"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "railguard-server: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, listeners{}); err != nil {
		log.Error(context.Background(), "railguard-server exited", logging.Err(err))
		os.Exit(1)
	}
}

// listeners lets callers supply pre-bound sockets; nil entries are bound
// from the configured addresses.
type listeners struct {
	HTTP net.Listener
	GRPC net.Listener
}

// run wires the simulator and blocks until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	routeMetrics, err := observability.NewRouteCollector(reg)
	if err != nil {
		return fmt.Errorf("init route metrics: %w", err)
	}

	base := kb.NewKnowledgeBase()
	summary, err := loadTrack(ctx, cfg, base, log)
	if err != nil {
		return err
	}
	log.Info(ctx, "track network loaded",
		logging.String("name", summary.Name),
		logging.Int("nodes", summary.Nodes),
		logging.Int("edges", summary.Edges),
	)

	board := state.NewOccupancyBoard(base.HasSegment)
	if err := board.Replace(cfg.BlockedTracks); err != nil {
		return fmt.Errorf("blocked tracks: %w", err)
	}

	fleet := state.NewFleetState(board, log, state.WithMetricsRecorder(simMetrics))
	rosterIDs, err := addRoster(fleet, cfg.Roster)
	if err != nil {
		return err
	}

	routes := routing.NewService(base, board, log,
		routing.WithCache(cfg.RouteCacheSize, cfg.RouteCacheTTL),
		routing.WithMetrics(routeMetrics),
	)
	defer routes.Close()

	httpSrv := api.NewServer(api.Deps{
		Fleet:   fleet,
		Board:   board,
		Routes:  routes,
		Metrics: simMetrics,
		Log:     log,
	})
	defer httpSrv.Close()

	grpcSrv := nbi.NewServer(
		nbi.NewSimulationService(fleet, board, routes, log),
		log,
		simMetrics.UnaryServerInterceptor(),
	)

	if lis.HTTP == nil {
		if lis.HTTP, err = net.Listen("tcp", cfg.HTTPAddr); err != nil {
			return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
		}
	}
	if lis.GRPC == nil {
		if lis.GRPC, err = net.Listen("tcp", cfg.GRPCAddr); err != nil {
			_ = lis.HTTP.Close()
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	engine := core.NewEngine()
	clock := timectrl.NewTimeController(time.Now(), cfg.Tick, mode)
	clock.AddListener(func(uint64, time.Time) {
		fleet.Advance(runCtx, engine)
	})
	clockDone := clock.Start(runCtx, 0)
	grpcSrv.SetServing(true)

	sequence := cfg.DispatchSequence
	if len(sequence) == 0 {
		sequence = rosterIDs
	}
	var dispatched <-chan dispatch.Result
	if len(sequence) > 0 {
		dispatched = dispatch.New(fleet, cfg.DispatchDelay, log).Start(runCtx, sequence)
	}

	errCh := make(chan error, 2)
	web := &http.Server{Handler: httpSrv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info(ctx, "serving HTTP", logging.String("addr", lis.HTTP.Addr().String()))
		if err := web.Serve(lis.HTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		log.Info(ctx, "serving gRPC", logging.String("addr", lis.GRPC.Addr().String()))
		if err := grpcSrv.GRPC.Serve(lis.GRPC); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	log.Info(ctx, "simulation running",
		logging.Duration("tick", cfg.Tick),
		logging.String("mode", mode.String()),
		logging.Int("trains", fleet.Len()),
		logging.Int("dispatch_sequence", len(sequence)),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down railguard-server")
	grpcSrv.SetServing(false)
	cancel()
	<-clockDone
	if dispatched != nil {
		res := <-dispatched
		log.Info(context.Background(), "dispatcher stopped",
			logging.Int("released", len(res.Released)),
			logging.Int("skipped", len(res.Skipped)),
		)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := web.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "http shutdown", logging.Err(err))
	}
	grpcSrv.Stop()

	return runErr
}

// loadTrack fills base from PostgreSQL, a JSON file or the built-in
// network, in that order of preference.
func loadTrack(ctx context.Context, cfg config.Config, base *kb.KnowledgeBase, log logging.Logger) (*core.TrackSummary, error) {
	switch {
	case cfg.TrackDSN != "":
		store, err := trackstore.Open(ctx, cfg.TrackDSN, log, trackstore.DefaultOptions())
		if err != nil {
			return nil, err
		}
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		network, err := core.DefaultTrackNetwork()
		if err != nil {
			return nil, err
		}
		if seeded, err := store.SeedIfEmpty(ctx, network); err != nil {
			return nil, err
		} else if seeded {
			log.Info(ctx, "seeded track store with the built-in network")
		}
		return store.Load(ctx, base)

	case cfg.TrackFile != "":
		return core.LoadTrackNetworkFile(base, cfg.TrackFile)

	default:
		return core.LoadDefaultTrackNetwork(base)
	}
}

// addRoster creates one held train per category at km 0 and returns the
// assigned ids in roster order.
func addRoster(fleet *state.FleetState, roster []model.Category) ([]string, error) {
	held := false
	trains := make([]model.Train, 0, len(roster))
	for _, c := range roster {
		train, err := fleet.AddTrain(model.TrainSpec{
			Category:    c,
			MaxSpeedKmh: model.DefaultMaxSpeedKmh,
			Dispatched:  &held,
		})
		if err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		trains = append(trains, train)
	}
	return lo.Map(trains, func(t model.Train, _ int) string { return t.ID }), nil
}
