// Package nbi is the northbound gRPC surface of the simulator. Messages are
// google.protobuf.Struct values shaped like the HTTP API's JSON bodies.
package nbi

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/railguard-simulator/internal/logging"
	"github.com/signalsfoundry/railguard-simulator/internal/observability"
	"github.com/signalsfoundry/railguard-simulator/internal/routing"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "railguard.v1.SimulationService"

// SimulationServer is the server API for the simulation service.
type SimulationServer interface {
	GetState(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	AddTrain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DispatchTrain(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindRoute(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetOccupancy(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// DispatchRequest names the train to release.
type DispatchRequest struct {
	TrainID string `json:"train_id"`
}

// DispatchResponse reports whether the release changed anything.
type DispatchResponse struct {
	TrainID    string `json:"train_id"`
	Dispatched bool   `json:"dispatched"`
	Changed    bool   `json:"changed"`
}

// RouteRequest names the endpoints of a route query.
type RouteRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RouteResponse mirrors the HTTP path response. OptimalPath is nil and
// Reason set when no usable route exists.
type RouteResponse struct {
	StartNode     string          `json:"start_node"`
	EndNode       string          `json:"end_node"`
	OptimalPath   []string        `json:"optimal_path"`
	TotalTimeMins float64         `json:"total_time_mins,omitempty"`
	DistanceKm    float64         `json:"distance_km,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Blocked       []model.Segment `json:"blocked_tracks_at_moment"`
}

// OccupancyMessage carries the full occupied set.
type OccupancyMessage struct {
	OccupiedTracks []model.Segment `json:"occupied_tracks"`
}

// AddTrainResponse echoes the created train.
type AddTrainResponse struct {
	Status  string      `json:"status"`
	TrainID string      `json:"train_id"`
	Train   model.Train `json:"train"`
}

// SimulationService implements SimulationServer over the fleet registry,
// the occupancy board and the route service.
type SimulationService struct {
	fleet  *state.FleetState
	board  *state.OccupancyBoard
	routes *routing.Service
	log    logging.Logger
}

// NewSimulationService constructs the service.
func NewSimulationService(fleet *state.FleetState, board *state.OccupancyBoard, routes *routing.Service, log logging.Logger) *SimulationService {
	if log == nil {
		log = logging.Noop()
	}
	return &SimulationService{fleet: fleet, board: board, routes: routes, log: log}
}

// Register attaches the service to a gRPC server.
func (s *SimulationService) Register(server grpc.ServiceRegistrar) {
	server.RegisterService(&SimulationServiceDesc, s)
}

func (s *SimulationService) ensureReady() error {
	if s == nil || s.fleet == nil || s.board == nil || s.routes == nil {
		return status.Error(codes.Unavailable, "simulation is not initialised")
	}
	return nil
}

func (s *SimulationService) logger(ctx context.Context) logging.Logger {
	return logging.FromContext(ctx, s.log)
}

// GetState returns the current snapshot.
func (s *SimulationService) GetState(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out, err := toStruct(s.fleet.Snapshot())
	return out, ToStatusError(err)
}

// AddTrain creates a train from a TrainRequest-shaped struct.
func (s *SimulationService) AddTrain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req model.TrainRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}

	ctx, span := observability.StartSpan(ctx, "fleet.AddTrain", attribute.String("train.category", req.Category))
	defer span.End()

	train, err := s.fleet.AddTrain(req.Spec())
	if err != nil {
		span.RecordError(err)
		s.logger(ctx).Warn(ctx, "add train rejected", logging.Err(err))
		return nil, ToStatusError(err)
	}
	out, err := toStruct(AddTrainResponse{Status: "ok", TrainID: train.ID, Train: train})
	return out, ToStatusError(err)
}

// DispatchTrain releases a held train.
func (s *SimulationService) DispatchTrain(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req DispatchRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if req.TrainID == "" {
		return nil, status.Error(codes.InvalidArgument, "train_id is required")
	}

	changed, err := s.fleet.SetDispatched(req.TrainID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	if changed {
		s.logger(ctx).Info(ctx, "train dispatched", logging.TrainID(req.TrainID))
	}
	out, err := toStruct(DispatchResponse{TrainID: req.TrainID, Dispatched: true, Changed: changed})
	return out, ToStatusError(err)
}

// FindRoute plans a route under the current occupancy. Unknown or
// unreachable endpoints are reported through Reason, matching the HTTP API.
func (s *SimulationService) FindRoute(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req RouteRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if req.Start == "" || req.End == "" {
		return nil, status.Error(codes.InvalidArgument, "start and end are required")
	}

	answer := s.routes.FindRoute(ctx, req.Start, req.End)
	resp := RouteResponse{StartNode: answer.Start, EndNode: answer.End, Blocked: answer.Blocked}
	if answer.Route != nil {
		resp.OptimalPath = answer.Route.Nodes
		resp.TotalTimeMins = answer.Route.TotalTimeMins
		resp.DistanceKm = answer.Route.DistanceKm
	} else if answer.Err != nil {
		resp.Reason = answer.Err.Error()
	}
	out, err := toStruct(resp)
	return out, ToStatusError(err)
}

// SetOccupancy replaces the occupied set.
func (s *SimulationService) SetOccupancy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	var req OccupancyMessage
	if err := fromStruct(in, &req); err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.board.Replace(req.OccupiedTracks); err != nil {
		if !errors.Is(err, state.ErrInvalidSegment) {
			s.logger(ctx).Error(ctx, "replace occupancy", logging.Err(err))
		}
		return nil, ToStatusError(err)
	}
	s.logger(ctx).Info(ctx, "occupancy replaced", logging.Int("segments", len(req.OccupiedTracks)))
	out, err := toStruct(OccupancyMessage{OccupiedTracks: s.board.OccupiedTracks()})
	return out, ToStatusError(err)
}
