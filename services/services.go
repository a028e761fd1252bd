// Package services provides common utilities for services.
package services

import (
	"context"

	"github.com/ChristianMct/heagg"
)

type ctxKeyT string

const (
	// CtxKeyName is the context key for the name of the service handling a call.
	CtxKeyName ctxKeyT = "service"
	// CtxRequestID is the context key for the id of the request being handled.
	CtxRequestID ctxKeyT = "request_id"
)

// ServiceFromContext returns the service name from the context.
func ServiceFromContext(ctx context.Context) (string, bool) {
	service, ok := ctx.Value(CtxKeyName).(string)
	return service, ok
}

// ContextWithRequestID returns a child context carrying the request id.
func ContextWithRequestID(ctx context.Context, id heagg.RequestID) context.Context {
	return context.WithValue(ctx, CtxRequestID, id)
}

// RequestIDFromContext returns the request id from the context.
func RequestIDFromContext(ctx context.Context) (heagg.RequestID, bool) {
	id, ok := ctx.Value(CtxRequestID).(heagg.RequestID)
	return id, ok
}
