package adminrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/adaptive-policy/internal/monitor"
	"github.com/danielpatrickdp/adaptive-policy/internal/safety"
)

// #region client-struct

// Client wraps a connection to the admin service.
type Client struct {
	conn *grpc.ClientConn
	own  bool
}

// NewClient connects to the admin server at addr.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: true}, nil
}

// NewClientWithConn wraps an existing connection. Close leaves it open.
func NewClientWithConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close shuts down the connection if the client created it.
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}

// #endregion client-struct

// #region calls

// Freeze pauses evolution and returns the resulting status.
func (c *Client) Freeze(ctx context.Context) (safety.Status, error) {
	return c.statusCall(ctx, "Freeze", &emptypb.Empty{})
}

// Unfreeze resumes evolution.
func (c *Client) Unfreeze(ctx context.Context) (safety.Status, error) {
	return c.statusCall(ctx, "Unfreeze", &emptypb.Empty{})
}

// Rollback rolls back to target, or to the previous version when target
// is 0, and returns the new version number.
func (c *Client) Rollback(ctx context.Context, target int) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, "Rollback", wrapperspb.Int64(int64(target)), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// Kill terminates the system. note is recorded in the server log.
func (c *Client) Kill(ctx context.Context, note string) (safety.Status, error) {
	return c.statusCall(ctx, "Kill", wrapperspb.String(note))
}

// Status returns the safety flags.
func (c *Client) Status(ctx context.Context) (safety.Status, error) {
	return c.statusCall(ctx, "Status", &emptypb.Empty{})
}

// RunCycle forces an iteration cycle.
func (c *Client) RunCycle(ctx context.Context) (CycleView, error) {
	var v CycleView
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "RunCycle", &emptypb.Empty{}, out); err != nil {
		return v, err
	}
	err := fromStruct(out, &v)
	return v, err
}

// Health returns the graded health status.
func (c *Client) Health(ctx context.Context) (monitor.HealthStatus, error) {
	var h monitor.HealthStatus
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Health", &emptypb.Empty{}, out); err != nil {
		return h, err
	}
	err := fromStruct(out, &h)
	return h, err
}

// #endregion calls

func (c *Client) statusCall(ctx context.Context, name string, in proto.Message) (safety.Status, error) {
	var st safety.Status
	out := new(structpb.Struct)
	if err := c.invoke(ctx, name, in, out); err != nil {
		return st, err
	}
	err := fromStruct(out, &st)
	return st, err
}

func (c *Client) invoke(ctx context.Context, name string, in, out proto.Message) error {
	return c.conn.Invoke(ctx, fullMethod(name), in, out)
}
