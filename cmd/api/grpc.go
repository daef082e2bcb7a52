package main

import (
	"context"
	"fmt"
	"net"

	"github.com/SUF145/call-geo/common/grpcutil"
	"github.com/SUF145/call-geo/common/logger"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// StartGRPCServer serves the standard health service until ctx is cancelled.
func (app *Config) StartGRPCServer(ctx context.Context) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", app.Settings.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcutil.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcutil.StreamServerInterceptor()),
	)
	healthpb.RegisterHealthServer(s, app.Health)

	go func() {
		<-ctx.Done()
		app.Health.Shutdown()
		s.GracefulStop()
	}()

	logger.AppInfo("gRPC server listening", "port", app.Settings.GRPCPort)
	return s.Serve(lis)
}
