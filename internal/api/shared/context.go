// Package shared holds request-scoped helpers used by both the API handlers
// and their middleware: context keys, JSON decoding and response writing.
package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ContextKey namespaces values stored in a request context.
type ContextKey string

const (
	// UserIDContextKey carries the authenticated user id (the session subject).
	UserIDContextKey ContextKey = "userID"

	// TraceIDKey carries the request trace id.
	TraceIDKey ContextKey = "traceID"

	traceIDBytes = 16
)

// WithUserID stores an authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserIDContextKey).(string)
	return id
}

// SetTraceID stores a trace id in ctx. The id of an active OpenTelemetry
// span is reused so error responses can be matched to exported traces.
func SetTraceID(ctx context.Context) context.Context {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return context.WithValue(ctx, TraceIDKey, sc.TraceID().String())
	}
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID returns the trace id in ctx, or "".
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

func generateTraceID() string {
	b := make([]byte, traceIDBytes)
	if _, err := rand.Read(b); err != nil {
		// time-based ids still correlate logs when the entropy source fails
		ts := strconv.FormatInt(time.Now().UnixNano(), 16)
		for len(ts) < 2*traceIDBytes {
			ts = "0" + ts
		}
		return ts
	}
	return hex.EncodeToString(b)
}
