package nbi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/model"
)

// Client is a typed client for railguard.v1.SimulationService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// GetState fetches the current snapshot.
func (c *Client) GetState(ctx context.Context, opts ...grpc.CallOption) (state.Snapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetState"), &emptypb.Empty{}, out, opts...); err != nil {
		return state.Snapshot{}, err
	}
	var snap state.Snapshot
	err := fromStruct(out, &snap)
	return snap, err
}

// AddTrain creates a train.
func (c *Client) AddTrain(ctx context.Context, req model.TrainRequest, opts ...grpc.CallOption) (AddTrainResponse, error) {
	var resp AddTrainResponse
	err := c.call(ctx, "AddTrain", req, &resp, opts...)
	return resp, err
}

// DispatchTrain releases a held train.
func (c *Client) DispatchTrain(ctx context.Context, trainID string, opts ...grpc.CallOption) (DispatchResponse, error) {
	var resp DispatchResponse
	err := c.call(ctx, "DispatchTrain", DispatchRequest{TrainID: trainID}, &resp, opts...)
	return resp, err
}

// FindRoute plans a route under the current occupancy.
func (c *Client) FindRoute(ctx context.Context, start, end string, opts ...grpc.CallOption) (RouteResponse, error) {
	var resp RouteResponse
	err := c.call(ctx, "FindRoute", RouteRequest{Start: start, End: end}, &resp, opts...)
	return resp, err
}

// SetOccupancy replaces the occupied set and returns the stored result.
func (c *Client) SetOccupancy(ctx context.Context, segs []model.Segment, opts ...grpc.CallOption) ([]model.Segment, error) {
	var resp OccupancyMessage
	err := c.call(ctx, "SetOccupancy", OccupancyMessage{OccupiedTracks: segs}, &resp, opts...)
	return resp.OccupiedTracks, err
}

func (c *Client) call(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return err
	}
	return fromStruct(out, resp)
}
