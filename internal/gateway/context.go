package gateway

import (
	"context"

	"github.com/relaymesh/gateway/internal/budget"
)

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	apiKeyContextKey    contextKey = "api_key_record"
)

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFrom returns the request id stashed by the request-id middleware,
// or "" if none was set (e.g. in a unit test calling a handler directly).
func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDContextKey).(string); ok {
		return v
	}
	return ""
}

func withAPIKeyRecord(ctx context.Context, rec *budget.ApiKeyRecord) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, rec)
}

// apiKeyRecordFrom returns the authenticated key record, or nil if the
// request carried no API key header; authMiddleware always lets such
// requests through anonymously.
func apiKeyRecordFrom(ctx context.Context) *budget.ApiKeyRecord {
	if v, ok := ctx.Value(apiKeyContextKey).(*budget.ApiKeyRecord); ok {
		return v
	}
	return nil
}
