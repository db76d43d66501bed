package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/JoshuaRamirez/acs-gateway/api/rpcapi"
	"github.com/JoshuaRamirez/acs-gateway/internal/command"
	"github.com/JoshuaRamirez/acs-gateway/internal/errs"
)

// Server implements rpcapi.TenantWorkerServer: it hands every Execute
// call to the tenant's CommandBuffer so commands are still serialized
// one at a time even though gRPC itself is concurrent.
type Server struct {
	rpcapi.UnimplementedTenantWorkerServer

	tenantID  string
	buffer    *command.Buffer
	startedAt time.Time
}

// NewServer builds a Server for tenantID backed by buffer.
func NewServer(tenantID string, buffer *command.Buffer) *Server {
	return &Server{tenantID: tenantID, buffer: buffer, startedAt: time.Now()}
}

// Handshake is not used by this deployment: tenant keys live in a
// shared KeyStore keyed by tenant id, so there is no per-connection
// key exchange to perform.
func (s *Server) Handshake(_ context.Context, req *rpcapi.HandshakeRequest) (*rpcapi.HandshakeResponse, error) {
	return &rpcapi.HandshakeResponse{KeyVersion: 1}, nil
}

// Execute enqueues req on the tenant's CommandBuffer and waits for its
// result, translating internal/errs.Error into the CommandResponse's
// ErrorMessage rather than a transport-level failure so the gateway's
// CommandDispatcher can distinguish a worker error from a dead channel.
func (s *Server) Execute(ctx context.Context, req *rpcapi.CommandRequest) (*rpcapi.CommandResponse, error) {
	cmd := command.Command{
		TypeID:        req.CommandType,
		Payload:       req.CommandData,
		CorrelationID: req.CorrelationID,
	}
	result, err := s.buffer.Enqueue(ctx, cmd)
	if err != nil {
		return &rpcapi.CommandResponse{
			Success:       false,
			ErrorMessage:  err.Error(),
			ErrorKind:     string(errs.KindOf(err)),
			CorrelationID: req.CorrelationID,
		}, nil
	}
	return &rpcapi.CommandResponse{
		Success:       true,
		ResultData:    result.Data,
		CorrelationID: req.CorrelationID,
	}, nil
}

// HealthCheck reports liveness and basic throughput counters, polled
// by TenantProcessManager during startup and opportunistic rechecks.
func (s *Server) HealthCheck(_ context.Context, _ *rpcapi.HealthRequest) (*rpcapi.HealthResponse, error) {
	return &rpcapi.HealthResponse{
		Healthy:           true,
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		CommandsProcessed: s.buffer.CommandsProcessed(),
	}, nil
}

// Serve starts the gRPC listener on addr and blocks until it exits.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	rpcapi.RegisterTenantWorkerServer(srv, s)

	log.Printf("[%s] tenant worker gRPC server listening on %s", s.tenantID, addr)
	return srv.Serve(lis)
}
