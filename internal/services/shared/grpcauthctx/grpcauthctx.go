// Package grpcauthctx carries caller identity and request correlation across
// gRPC boundaries.
package grpcauthctx

import (
	"context"
	"strings"

	"github.com/louisbranch/safezone/internal/platform/id"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UserIDHeader is the gRPC metadata key naming the calling user.
const UserIDHeader = "x-safezone-user-id"

// RequestIDHeader is the gRPC metadata key for request correlation IDs.
const RequestIDHeader = "x-safezone-request-id"

type contextKey string

const requestIDContextKey contextKey = "safezone-request-id"

// WithUserID returns a context with user-id gRPC metadata when userID is non-empty.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, UserIDHeader, userID)
}

// UserIDFromIncoming returns the caller's user ID from incoming metadata.
func UserIDFromIncoming(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(FirstMetadataValue(md, UserIDHeader))
}

// RequestIDFromContext returns the request ID stored by the server interceptor.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDContextKey).(string)
	return value
}

// IsPrintableASCII reports whether a string contains only printable ASCII characters.
func IsPrintableASCII(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < 0x20 || value[i] > 0x7e {
			return false
		}
	}
	return true
}

// FirstMetadataValue returns the first printable ASCII metadata value for a key.
func FirstMetadataValue(md metadata.MD, key string) string {
	for mdKey, values := range md {
		if !strings.EqualFold(mdKey, key) {
			continue
		}
		for _, value := range values {
			if IsPrintableASCII(value) {
				return value
			}
		}
	}
	return ""
}

// UserIDUnaryClientInterceptor stamps every unary call with userID.
func UserIDUnaryClientInterceptor(userID string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(WithUserID(ctx, userID), method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor guarantees every inbound call a request ID, echoes
// it in the response headers and tags the active span with it and the caller.
func UnaryServerInterceptor(idGenerator func() (string, error)) grpc.UnaryServerInterceptor {
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			requestID = FirstMetadataValue(md, RequestIDHeader)
		}
		if requestID == "" {
			generated, err := idGenerator()
			if err != nil {
				return nil, status.Errorf(codes.Internal, "generate request id: %v", err)
			}
			requestID = generated
		}
		ctx = context.WithValue(ctx, requestIDContextKey, requestID)
		if err := grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, requestID)); err != nil {
			return nil, status.Errorf(codes.Internal, "set response metadata: %v", err)
		}
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.String("safezone.request_id", requestID),
			attribute.String("safezone.user_id", UserIDFromIncoming(ctx)),
		)
		return handler(ctx, req)
	}
}
