// Package grpcx exposes the gRPC liveness surface of the broker.
package grpcx

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-check service name reported alongside "".
const ServiceName = "ridehub.Broker"

// NewServer builds a gRPC server with the logging interceptors and the
// standard health service registered as SERVING.
func NewServer(log *slog.Logger) (*grpc.Server, *health.Server) {
	log = log.With(slog.String("component", "grpc"))
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(log)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(log)),
	)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	return s, hs
}
