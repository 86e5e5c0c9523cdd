package server

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// telemetryInterceptor logs one line per unary call with the trace and
// span identifiers when a propagated trace context is present.
func telemetryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)

		code := codes.OK
		if err != nil {
			code = codes.Internal
			if st, ok := status.FromError(err); ok {
				code = st.Code()
			}
		}

		var traceID, spanID string
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
			spanID = sc.SpanID().String()
		}

		if traceID != "" {
			log.Printf("grpc method=%s code=%s trace_id=%s span_id=%s", info.FullMethod, code, traceID, spanID)
		} else {
			log.Printf("grpc method=%s code=%s", info.FullMethod, code)
		}
		return resp, err
	}
}
