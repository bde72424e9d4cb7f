package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/LerianStudio/acsd/internal/envelope"
)

type fakeWorkerServer struct{}

func (fakeWorkerServer) ExecuteCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error) {
	return envelope.Reply{Success: true, CorrelationID: env.CorrelationID, ResultBytes: []byte("ok:" + tenantID)}, nil
}

func (fakeWorkerServer) HealthCheck(ctx context.Context) (HealthReply, error) {
	return HealthReply{Healthy: true, CommandsProcessed: 42}, nil
}

func startTestServer(t *testing.T) string {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := grpc.NewServer()
	RegisterWorkerServer(s, fakeWorkerServer{})

	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	return lis.Addr().String()
}

func TestRPC_ExecuteCommandRoundTrip(t *testing.T) {
	addr := startTestServer(t)

	conn, err := Dial(context.Background(), addr, 1)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := conn.ExecuteCommand(ctx, "acme", envelope.Envelope{OpName: "Echo", CorrelationID: "c1"})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.Equal(t, "c1", reply.CorrelationID)
	assert.Equal(t, []byte("ok:acme"), reply.ResultBytes, "tenant id must reach the worker-side handler")
	assert.Equal(t, uint64(1), conn.Generation())
}

func TestRPC_HealthCheckRoundTrip(t *testing.T) {
	addr := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	checker := HealthChecker{}
	err := checker.HealthCheck(ctx, addr)
	assert.NoError(t, err)
}
