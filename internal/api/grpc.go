package api

import (
	"context"
	"net"
	"time"

	"Go2NetPulse/internal/logging"
	"Go2NetPulse/internal/query"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CaptureService is the health service name that tracks the capture state.
const CaptureService = "ns.monitor.Capture"

// GRPCServer exposes the standard gRPC health service. The overall status is
// SERVING for the lifetime of the process; CaptureService follows the engine.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	capturer query.Capturer
	log      *logrus.Entry
}

// NewGRPCServer creates the gRPC server and registers its services.
func NewGRPCServer(capturer query.Capturer) *GRPCServer {
	s := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	g := &GRPCServer{server: s, health: hs, capturer: capturer, log: logging.For("grpc")}
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.refresh()
	return g
}

// Serve accepts connections on lis until Stop is called.
func (g *GRPCServer) Serve(lis net.Listener) error {
	g.log.WithField("addr", lis.Addr().String()).Info("gRPC server starting")
	return g.server.Serve(lis)
}

// Watch polls the capture state every interval until ctx is done.
func (g *GRPCServer) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			g.refresh()
		case <-ctx.Done():
			return
		}
	}
}

func (g *GRPCServer) refresh() {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if g.capturer.IsCapturing() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus(CaptureService, status)
}

// Stop marks every service NOT_SERVING and drains in-flight calls.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
	g.log.Info("gRPC server stopped")
}
