package tenant

import (
	"context"
	"errors"
)

// Key type for values stored in context
type contextKey string

const (
	funnelIDKey  contextKey = "funnelID"
	requestIDKey contextKey = "requestID"
	clientIPKey  contextKey = "clientIP"
)

// ErrFunnelIDNotFound is returned when no funnel ID is found in context
var ErrFunnelIDNotFound = errors.New("funnel ID not found in context")

// WithFunnelID adds a funnel ID to the context
func WithFunnelID(ctx context.Context, funnelID string) context.Context {
	return context.WithValue(ctx, funnelIDKey, funnelID)
}

// FromContext extracts the funnel ID from the context
func FromContext(ctx context.Context) (string, error) {
	funnelID, ok := ctx.Value(funnelIDKey).(string)
	if !ok || funnelID == "" {
		return "", ErrFunnelIDNotFound
	}
	return funnelID, nil
}

// MustFromContext extracts the funnel ID from the context or panics
func MustFromContext(ctx context.Context) string {
	funnelID, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return funnelID
}

// ErrNoRequestIDInContext is returned when no request ID is found in context
var ErrNoRequestIDInContext = errors.New("no request ID found in context")

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromRequestIDContext extracts the request ID from the context
func FromRequestIDContext(ctx context.Context) (string, error) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	if !ok || requestID == "" {
		return "", ErrNoRequestIDInContext
	}
	return requestID, nil
}

// WithClientIP adds the originating client IP to the context
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// ClientIPFromContext extracts the client IP from the context, empty if absent
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
