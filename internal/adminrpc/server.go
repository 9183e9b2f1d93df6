package adminrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/adaptive-policy/internal/coordinator"
	"github.com/danielpatrickdp/adaptive-policy/internal/monitor"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/scheduler"
)

// #region collaborators

// SafetyControls is the operator surface of the safety controller.
type SafetyControls interface {
	Freeze(ctx context.Context) error
	Unfreeze(ctx context.Context) error
	Rollback(ctx context.Context, target *int) (int, error)
	Kill(ctx context.Context, reason string) error
	Status(ctx context.Context) (safety.Status, error)
}

// CycleTrigger runs a cycle on demand.
type CycleTrigger interface {
	Force(ctx context.Context) (coordinator.Outcome, error)
}

// HealthChecker grades the system.
type HealthChecker interface {
	CheckHealth(ctx context.Context) (monitor.HealthStatus, error)
}

// #endregion collaborators

// #region server

// Server implements AdminServer.
type Server struct {
	safety SafetyControls
	cycles CycleTrigger
	health HealthChecker
}

// NewServer creates an admin server. cycles and health may be nil, in
// which case those RPCs return Unimplemented.
func NewServer(s SafetyControls, cycles CycleTrigger, health HealthChecker) *Server {
	return &Server{safety: s, cycles: cycles, health: health}
}

var _ AdminServer = (*Server)(nil)

// CycleView is the wire form of a cycle outcome.
type CycleView struct {
	IterationID      int64    `json:"iteration_id,omitempty"`
	TraceID          string   `json:"trace_id,omitempty"`
	Empty            bool     `json:"empty"`
	Failed           bool     `json:"failed"`
	Killed           bool     `json:"killed"`
	KillReason       string   `json:"kill_reason,omitempty"`
	State            string   `json:"state,omitempty"`
	Actions          []string `json:"actions,omitempty"`
	NewPolicyVersion *int     `json:"new_policy_version,omitempty"`
	Frozen           bool     `json:"frozen"`
	Error            string   `json:"error,omitempty"`
}

func (s *Server) Freeze(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Printf("[ADMIN] freeze requested")
	if err := s.safety.Freeze(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.statusStruct(ctx)
}

func (s *Server) Unfreeze(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	log.Printf("[ADMIN] unfreeze requested")
	if err := s.safety.Unfreeze(ctx); err != nil {
		return nil, toStatus(err)
	}
	return s.statusStruct(ctx)
}

func (s *Server) Rollback(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error) {
	v := req.GetValue()
	if v < 0 {
		return nil, status.Error(codes.InvalidArgument, "target version must be positive")
	}
	var target *int
	if v > 0 {
		t := int(v)
		target = &t
	}
	log.Printf("[ADMIN] rollback requested (target=%d)", req.GetValue())

	version, err := s.safety.Rollback(ctx, target)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(version)), nil
}

// Kill is always an operator kill; the reason is only logged.
func (s *Server) Kill(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	log.Printf("[ADMIN] kill requested (note=%q)", req.GetValue())
	if err := s.safety.Kill(ctx, ""); err != nil {
		return nil, toStatus(err)
	}
	return s.statusStruct(ctx)
}

func (s *Server) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return s.statusStruct(ctx)
}

func (s *Server) RunCycle(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.cycles == nil {
		return nil, status.Error(codes.Unimplemented, "cycle trigger not configured")
	}
	log.Printf("[ADMIN] cycle requested")
	out, err := s.cycles.Force(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(viewOf(out))
}

func (s *Server) Health(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.health == nil {
		return nil, status.Error(codes.Unimplemented, "health checker not configured")
	}
	h, err := s.health.CheckHealth(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(h)
}

// #endregion server

// #region helpers

func (s *Server) statusStruct(ctx context.Context) (*structpb.Struct, error) {
	st, err := s.safety.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(st)
}

func viewOf(out coordinator.Outcome) CycleView {
	v := CycleView{
		IterationID: out.IterationID,
		TraceID:     out.TraceID,
		Empty:       out.Empty,
		Failed:      out.Failed,
		Killed:      out.Killed,
		KillReason:  string(out.KillReason),
	}
	if out.Err != nil {
		v.Error = out.Err.Error()
	}
	if r := out.Result; r != nil {
		v.State = string(r.State)
		v.Actions = policy.ActionStrings(r.Actions)
		v.NewPolicyVersion = r.NewPolicyVersion
		v.Frozen = r.Frozen
	}
	return v
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, safety.ErrVersionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, safety.ErrInvalidTarget):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, safety.ErrNoVersions), errors.Is(err, safety.ErrInsufficientHistory):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, scheduler.ErrCycleInFlight):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// fromStruct decodes s into out through its JSON form.
func fromStruct(s *structpb.Struct, out any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// #endregion helpers
