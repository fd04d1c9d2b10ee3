package nbi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/railguard-simulator/core"
	"github.com/signalsfoundry/railguard-simulator/internal/sim/state"
	"github.com/signalsfoundry/railguard-simulator/kb"
	"github.com/signalsfoundry/railguard-simulator/model"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "invalid entity sentinel", err: fmt.Errorf("%w: bad entity", ErrInvalidEntity), code: codes.InvalidArgument},
		{name: "invalid train", err: fmt.Errorf("%w: max speed", model.ErrInvalidTrain), code: codes.InvalidArgument},
		{name: "invalid segment", err: state.ErrInvalidSegment, code: codes.InvalidArgument},
		{name: "train not found", err: state.ErrTrainNotFound, code: codes.NotFound},
		{name: "unknown node", err: core.ErrUnknownNode, code: codes.NotFound},
		{name: "blocked route", err: core.ErrRouteBlocked, code: codes.FailedPrecondition},
		{name: "duplicate node", err: fmt.Errorf("add: %w", kb.ErrNodeExists), code: codes.AlreadyExists},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}

			if got == nil {
				t.Fatalf("ToStatusError(%v) = nil, want error", tc.err)
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
