package adminrpc

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/danielpatrickdp/adaptive-policy/internal/coordinator"
	"github.com/danielpatrickdp/adaptive-policy/internal/monitor"
	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
	"github.com/danielpatrickdp/adaptive-policy/internal/scheduler"
	"github.com/danielpatrickdp/adaptive-policy/internal/state"
)

// #region fakes

type fakeSafety struct {
	mu          sync.Mutex
	status      safety.Status
	rollbackArg *int
	rollbackErr error
	killReason  *string
}

func (f *fakeSafety) Freeze(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Frozen = true
	return nil
}

func (f *fakeSafety) Unfreeze(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Frozen = false
	return nil
}

func (f *fakeSafety) Rollback(_ context.Context, target *int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbackArg = target
	if f.rollbackErr != nil {
		return 0, f.rollbackErr
	}
	return 7, nil
}

func (f *fakeSafety) Kill(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killReason = &reason
	f.status.Killed = true
	return nil
}

func (f *fakeSafety) Status(context.Context) (safety.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

type fakeCycles struct {
	out coordinator.Outcome
	err error
}

func (f *fakeCycles) Force(context.Context) (coordinator.Outcome, error) {
	return f.out, f.err
}

type fakeHealth struct{}

func (fakeHealth) CheckHealth(context.Context) (monitor.HealthStatus, error) {
	return monitor.HealthStatus{
		Status:          monitor.Degraded,
		Issues:          []string{"System is DRIFTING"},
		Recommendations: []string{"Monitor next iteration closely"},
	}, nil
}

// #endregion fakes

// dial starts srv on an in-memory listener and returns a connected client.
func dial(t *testing.T, srv *Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	RegisterAdminServer(gs, srv)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClientWithConn(conn)
}

func TestFreezeUnfreeze(t *testing.T) {
	ctx := context.Background()
	c := dial(t, NewServer(&fakeSafety{}, nil, nil))

	st, err := c.Freeze(ctx)
	if err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	if !st.Frozen {
		t.Error("expected frozen status")
	}

	st, err = c.Unfreeze(ctx)
	if err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if st.Frozen {
		t.Error("expected unfrozen status")
	}
}

func TestRollback(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSafety{}
	c := dial(t, NewServer(fs, nil, nil))

	v, err := c.Rollback(ctx, 0)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if v != 7 {
		t.Errorf("version = %d, want 7", v)
	}
	if fs.rollbackArg != nil {
		t.Errorf("target = %d, want previous (nil)", *fs.rollbackArg)
	}

	if _, err := c.Rollback(ctx, 3); err != nil {
		t.Fatalf("Rollback(3): %v", err)
	}
	if fs.rollbackArg == nil || *fs.rollbackArg != 3 {
		t.Errorf("target = %v, want 3", fs.rollbackArg)
	}
}

func TestRollbackErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{safety.ErrVersionNotFound, codes.NotFound},
		{safety.ErrInvalidTarget, codes.InvalidArgument},
		{safety.ErrNoVersions, codes.FailedPrecondition},
		{safety.ErrInsufficientHistory, codes.FailedPrecondition},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			c := dial(t, NewServer(&fakeSafety{rollbackErr: tt.err}, nil, nil))
			_, err := c.Rollback(context.Background(), 0)
			if got := status.Code(err); got != tt.code {
				t.Errorf("code = %s, want %s (err=%v)", got, tt.code, err)
			}
		})
	}
}

func TestRollbackNegativeTarget(t *testing.T) {
	c := dial(t, NewServer(&fakeSafety{}, nil, nil))
	_, err := c.Rollback(context.Background(), -1)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("code = %s, want InvalidArgument", status.Code(err))
	}
}

func TestKillIsOperatorKill(t *testing.T) {
	fs := &fakeSafety{}
	c := dial(t, NewServer(fs, nil, nil))

	st, err := c.Kill(context.Background(), "bad release")
	if err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if !st.Killed {
		t.Error("expected killed status")
	}
	if fs.killReason == nil || *fs.killReason != "" {
		t.Errorf("reason passed to controller = %v, want empty", fs.killReason)
	}
}

func TestRunCycle(t *testing.T) {
	v := 4
	cycles := &fakeCycles{out: coordinator.Outcome{
		IterationID: 12,
		TraceID:     "abc",
		Result: &coordinator.CycleResult{
			State:            state.Stable,
			Actions:          []policy.EvolutionAction{policy.RelaxLength},
			NewPolicyVersion: &v,
		},
	}}
	c := dial(t, NewServer(&fakeSafety{}, cycles, nil))

	view, err := c.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if view.IterationID != 12 || view.State != "stable" {
		t.Errorf("view = %+v", view)
	}
	if len(view.Actions) != 1 || view.Actions[0] != "relax_length" {
		t.Errorf("actions = %v", view.Actions)
	}
	if view.NewPolicyVersion == nil || *view.NewPolicyVersion != 4 {
		t.Errorf("new version = %v, want 4", view.NewPolicyVersion)
	}
}

func TestRunCycleInFlight(t *testing.T) {
	c := dial(t, NewServer(&fakeSafety{}, &fakeCycles{err: scheduler.ErrCycleInFlight}, nil))
	_, err := c.RunCycle(context.Background())
	if status.Code(err) != codes.Aborted {
		t.Errorf("code = %s, want Aborted", status.Code(err))
	}
}

func TestUnconfiguredRPCs(t *testing.T) {
	c := dial(t, NewServer(&fakeSafety{}, nil, nil))
	if _, err := c.RunCycle(context.Background()); status.Code(err) != codes.Unimplemented {
		t.Errorf("RunCycle code = %s, want Unimplemented", status.Code(err))
	}
	if _, err := c.Health(context.Background()); status.Code(err) != codes.Unimplemented {
		t.Errorf("Health code = %s, want Unimplemented", status.Code(err))
	}
}

func TestHealth(t *testing.T) {
	c := dial(t, NewServer(&fakeSafety{}, nil, fakeHealth{}))
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != monitor.Degraded || len(h.Issues) != 1 {
		t.Errorf("health = %+v", h)
	}
}

func TestStatus(t *testing.T) {
	fs := &fakeSafety{status: safety.Status{Frozen: true, FrozenAt: "2026-03-01T12:00:00Z"}}
	c := dial(t, NewServer(fs, nil, nil))
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Frozen || st.FrozenAt != "2026-03-01T12:00:00Z" {
		t.Errorf("status = %+v", st)
	}
}
