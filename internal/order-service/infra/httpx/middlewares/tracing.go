package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors"
	"github.com/jcmexdev/resilient-orders/internal/pkg/interceptors/constants"
)

// AttachTracingMetadata stores the chi request id and the caller's
// idempotency key in the context and in the outgoing gRPC metadata.
func AttachTracingMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		idempotencyKey := r.Header.Get(constants.HeaderXIdempotencyKey)

		ctx := context.WithValue(r.Context(), constants.ContextKeyRequestID, requestID)
		ctx = context.WithValue(ctx, constants.ContextKeyIdempotencyKey, idempotencyKey)
		ctx = interceptors.ContextWithPropagatedID(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
