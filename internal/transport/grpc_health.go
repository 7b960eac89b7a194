package transport

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tsgraph/internal/engine"
	"tsgraph/internal/metadata"
)

// GRPCServer registers a standard grpc_health_v1.HealthServer whose serving
// status reflects whether defaultEngine responds to a lightweight Exists
// probe. No domain-specific RPC API is introduced.
type GRPCServer struct {
	srv          *grpc.Server
	health       *health.Server
	defaultEngine engine.Engine
	probe        *metadata.Metadata
}

// NewGRPCServer builds a gRPC server with health checking wired to
// defaultEngine. probe is an arbitrary, already-constructed metadata node
// whose Exists() call exercises the engine's connection; it is never read
// or written, only probed.
func NewGRPCServer(defaultEngine engine.Engine, probe *metadata.Metadata) *GRPCServer {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	g := &GRPCServer{srv: srv, health: hs, defaultEngine: defaultEngine, probe: probe}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return g
}

// Serve listens on addr and blocks, periodically probing the default
// engine and updating the health status until the listener errors.
func (g *GRPCServer) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go g.probeLoop()
	return g.srv.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (g *GRPCServer) Stop() {
	g.srv.GracefulStop()
}

func (g *GRPCServer) probeLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	g.probeOnce()
	for range ticker.C {
		g.probeOnce()
	}
}

func (g *GRPCServer) probeOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if g.defaultEngine == nil || g.probe == nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	} else if _, err := g.defaultEngine.Exists(ctx, g.probe); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	g.health.SetServingStatus("", status)
}
