package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/LerianStudio/acsd/internal/envelope"
)

const serviceName = "acsd.Worker"

// HealthRequest is HealthCheck's empty request.
type HealthRequest struct{}

// HealthReply is HealthCheck's response.
type HealthReply struct {
	Healthy           bool
	UptimeSeconds     float64
	CommandsProcessed uint64
	ActiveConnections int
}

// WorkerServer is the Worker process surface: the single
// ExecuteCommand RPC plus HealthCheck. internal/bootstrap's
// WorkerService implements both, routing ExecuteCommand into
// internal/buffer's Buffer and answering HealthCheck from buffer stats.
type WorkerServer interface {
	ExecuteCommand(ctx context.Context, tenantID string, env envelope.Envelope) (envelope.Reply, error)
	HealthCheck(ctx context.Context) (HealthReply, error)
}

// executeCommandRequest carries the tenant_id alongside the envelope —
// the tenant is implicit per worker process, but the client sends it on
// every call and the worker rejects a mismatch, so a call misrouted to
// the wrong port (a stale route, a recycled port) fails loudly instead
// of executing against another tenant's state.
type executeCommandRequest struct {
	TenantID string
	Env      envelope.Envelope
}

func executeCommandHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(executeCommandRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return callExecuteCommand(ctx, srv.(WorkerServer), in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ExecuteCommand"}
	handler := func(ctx context.Context, req any) (any, error) {
		return callExecuteCommand(ctx, srv.(WorkerServer), req.(*executeCommandRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func callExecuteCommand(ctx context.Context, srv WorkerServer, req *executeCommandRequest) (any, error) {
	reply, err := srv.ExecuteCommand(ctx, req.TenantID, req.Env)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func healthCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HealthRequest)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return callHealthCheck(ctx, srv.(WorkerServer))
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/HealthCheck"}
	handler := func(ctx context.Context, _ any) (any, error) {
		return callHealthCheck(ctx, srv.(WorkerServer))
	}
	return interceptor(ctx, in, info, handler)
}

func callHealthCheck(ctx context.Context, srv WorkerServer) (any, error) {
	reply, err := srv.HealthCheck(ctx)
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

// serviceDesc is the hand-written equivalent of a protoc-gen-go-grpc
// ServiceDesc — this repository has no .proto file because the wire
// payload is already the op_name-tagged envelope, so a second schema
// layer would be redundant; codec.go carries the bytes.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*WorkerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ExecuteCommand", Handler: executeCommandHandler},
		{MethodName: "HealthCheck", Handler: healthCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/rpc/service.go",
}

// RegisterWorkerServer registers srv against s using serviceDesc.
func RegisterWorkerServer(s grpc.ServiceRegistrar, srv WorkerServer) {
	s.RegisterService(&serviceDesc, srv)
}
