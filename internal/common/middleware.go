package common

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthInterceptor resolves the caller from the "authorization" metadata
// (or the gateway user id) and injects it into the context.
// Methods listed in publicMethods bypass auth.
func AuthInterceptor(auth *Authenticator, publicMethods ...string) grpc.UnaryServerInterceptor {
	public := make(map[string]bool, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = true
	}

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if public[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		viewer, err := auth.Resolve(first(md, "authorization"), first(md, "x-user-id"))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		return handler(WithViewer(ctx, viewer), req)
	}
}

// LoggingUnaryInterceptor logs every call with its duration and outcome.
func LoggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			logger.Warn("grpc call failed",
				"method", info.FullMethod,
				"code", status.Code(err).String(),
				"duration", duration,
				"error", err,
			)
		} else {
			logger.Debug("grpc call completed", "method", info.FullMethod, "duration", duration)
		}
		return resp, err
	}
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
