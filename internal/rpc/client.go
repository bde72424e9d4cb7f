package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/LerianStudio/acsd/internal/envelope"
	"github.com/LerianStudio/acsd/internal/tenantclient"
)

// Connection is a single gRPC connection to one worker, tagged with the
// generation it was dialed for — internal/tenantclient's Pool keys its
// cache on this, discarding and redialing on generation mismatch.
type Connection struct {
	Addr       string
	generation uint64
	conn       *grpc.ClientConn
}

// Dial opens a gRPC connection to addr at generation, with our msgpack
// codec forced via content-subtype. Transport below adapts it to
// tenantclient.Transport.
func Dial(ctx context.Context, addr string, generation uint64) (*Connection, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", addr, err)
	}

	return &Connection{Addr: addr, generation: generation, conn: conn}, nil
}

// Generation implements tenantclient.Handle.
func (c *Connection) Generation() uint64 { return c.generation }

// Close implements tenantclient.Handle.
func (c *Connection) Close() error { return c.conn.Close() }

// ExecuteCommand implements tenantclient.Handle: invokes the
// ExecuteCommand RPC and returns the decoded Reply. tenantID rides in
// the request so the worker can reject a misrouted call.
func (c *Connection) ExecuteCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	req := &executeCommandRequest{TenantID: tenantID, Env: env}
	reply := new(envelope.Reply)

	if err := c.conn.Invoke(ctx, "/"+serviceName+"/ExecuteCommand", req, reply); err != nil {
		return envelope.Reply{}, err
	}

	return *reply, nil
}

// HealthCheck invokes the HealthCheck RPC over this connection and
// returns the decoded reply. HealthChecker below wraps it in a fresh
// dial per probe for supervisor.HealthChecker (the supervisor calls it
// far less often than the per-request path, so a pooled connection
// isn't warranted there).
func (c *Connection) HealthCheck(ctx context.Context) (HealthReply, error) {
	req := &HealthRequest{}
	reply := new(HealthReply)

	if err := c.conn.Invoke(ctx, "/"+serviceName+"/HealthCheck", req, reply); err != nil {
		return HealthReply{}, err
	}

	return *reply, nil
}

// HealthChecker adapts one-shot dial-and-probe calls to
// supervisor.HealthChecker's interface, used by the spawn sequence and
// the liveness probe.
type HealthChecker struct{}

// HealthCheck implements supervisor.HealthChecker by dialing addr,
// invoking HealthCheck, and closing the connection.
func (HealthChecker) HealthCheck(ctx context.Context, addr string) error {
	conn, err := Dial(ctx, addr, 0)
	if err != nil {
		return err
	}
	defer conn.Close()

	reply, err := conn.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !reply.Healthy {
		return fmt.Errorf("rpc: worker at %s reports unhealthy", addr)
	}
	return nil
}

// Transport adapts Dial to tenantclient.Transport.
type Transport struct{}

// Dial implements tenantclient.Transport.
func (Transport) Dial(ctx context.Context, addr string, generation uint64) (tenantclient.Handle, error) {
	return Dial(ctx, addr, generation)
}
