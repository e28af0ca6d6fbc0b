package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors/constants"
)

var propagated = []string{constants.HeaderXRequestId, constants.HeaderXIdempotencyKey}

// UnaryClientInterceptor forwards the request id and idempotency key held
// in the context to the outgoing metadata, unless already present.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(ContextWithPropagatedID(ctx), method, req, reply, cc, opts...)
	}
}

// ContextWithPropagatedID returns ctx with the propagated headers appended
// to its outgoing metadata.
func ContextWithPropagatedID(ctx context.Context) context.Context {
	out, _ := metadata.FromOutgoingContext(ctx)
	for _, key := range propagated {
		if len(out.Get(key)) > 0 {
			continue
		}
		if v := GetMetadataValue(ctx, key); v != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, key, v)
		}
	}
	return ctx
}

// GetMetadataValue looks key up in the context values first, then in the
// incoming and outgoing metadata.
func GetMetadataValue(ctx context.Context, key string) string {
	if id, ok := ctx.Value(constants.ContextKey(key)).(string); ok && id != "" {
		return id
	}

	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}

	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if ids := md.Get(key); len(ids) > 0 {
			return ids[0]
		}
	}
	return ""
}
