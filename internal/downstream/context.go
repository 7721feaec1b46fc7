package downstream

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// RequestIDHeader carries the inbound request id to every downstream call.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID returns a context carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// CredentialFingerprint returns a short stable hash of an Authorization
// header value so it can be correlated in logs without being revealed.
// An empty header yields "".
func CredentialFingerprint(authorization string) string {
	token := strings.TrimSpace(authorization)
	if token == "" {
		return ""
	}
	return fmt.Sprintf("%016x", xxh3.HashString128(token).Lo)
}
