package grpcutil

import (
	"context"
	"time"

	"github.com/SUF145/call-geo/common/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryServerInterceptor logs every unary call with its status code.
// Tracing comes from the otelgrpc stats handler installed on the server.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(ctx, "gRPC request", info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor logs streaming calls (health Watch) once they end.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(ss.Context(), "gRPC stream", info.FullMethod, start, err)
		return err
	}
}

func logCall(ctx context.Context, msg, method string, start time.Time, err error) {
	code := codes.OK
	if err != nil {
		code = status.Code(err)
	}
	l := logger.WithContext(ctx)
	if code != codes.OK && code != codes.Canceled {
		l.Warn(msg, "method", method, "code", code.String(), "duration", time.Since(start), "error", err)
		return
	}
	l.Debug(msg, "method", method, "code", code.String(), "duration", time.Since(start))
}
