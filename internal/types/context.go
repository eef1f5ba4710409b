package types

import "context"

// CallerService identifies which business service issued a request.
// It is resolved by the auth middleware from the X-Service-Name header after
// the shared service token has been verified.
type CallerService string

const (
	CallerGateway  CallerService = "api-gateway"
	CallerAI       CallerService = "ai-service"
	CallerSearch   CallerService = "search-service"
	CallerDocument CallerService = "document-service"
	CallerUnknown  CallerService = "unknown"
)

// Context Keys
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerKey    contextKey = "caller_service"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithCaller stores the calling service in the context.
func WithCaller(ctx context.Context, caller CallerService) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// GetCaller retrieves the calling service from the context.
// Returns CallerUnknown if the auth middleware did not run.
func GetCaller(ctx context.Context) CallerService {
	if c, ok := ctx.Value(callerKey).(CallerService); ok {
		return c
	}
	return CallerUnknown
}
