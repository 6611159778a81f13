package logger

import "context"

// The request id rides the context from the HTTP layer down through the
// services, so one check-in or regeneration trigger can be traced across
// log lines without threading an extra argument everywhere.

type ctxKey struct{}

var requestIDKey ctxKey

// WithRequestID stores id for the rest of the request's call chain.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id, or "" outside of a request (queue
// subscribers, the sweep scheduler).
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
