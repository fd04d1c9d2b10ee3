package nbi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
)

var (
	// ErrNotFound reports a lookup miss not covered by a domain sentinel.
	ErrNotFound = errors.New("not found")
	// ErrInvalidEntity reports a request body that could not be decoded.
	ErrInvalidEntity = errors.New("invalid entity")
)

// ToStatusError maps simulator errors onto gRPC status codes. Errors that
// already carry a status pass through untouched.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	case errors.Is(err, ErrNotFound),
		errors.Is(err, state.ErrTrainNotFound),
		errors.Is(err, core.ErrUnknownNode),
		errors.Is(err, kb.ErrNodeNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidEntity),
		errors.Is(err, model.ErrInvalidTrain),
		errors.Is(err, state.ErrInvalidSegment),
		errors.Is(err, kb.ErrInvalidNode),
		errors.Is(err, kb.ErrInvalidEdge):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrNodeExists),
		errors.Is(err, kb.ErrEdgeExists):
		return status.Error(codes.AlreadyExists, err.Error())

	case errors.Is(err, core.ErrNoRoute):
		return status.Error(codes.FailedPrecondition, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
