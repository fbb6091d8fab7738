// Package auth resolves the opaque caller identity recorded for audit on stock movements and
// tasks. Identity is never enforced: requests without a valid token run as Anonymous.
package auth

import (
	"context"
	"time"
)

// Anonymous is the identity of callers without a valid bearer token.
var Anonymous = Caller{ID: "anonymous"}

// Caller is the identity attached to a request.
type Caller struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Service defines the interface for caller identity tokens.
type Service interface {
	// IssueToken signs a token for caller valid for ttl.
	IssueToken(ctx context.Context, caller Caller, ttl time.Duration) (string, error)
	// Verify parses a token and returns the caller it was issued to.
	Verify(ctx context.Context, token string) (Caller, error)
}

type callerKey struct{}

// WithCaller stores the caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller in ctx, Anonymous when there is none.
func CallerFrom(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return Anonymous
}

// CallerID is a shortcut for CallerFrom(ctx).ID.
func CallerID(ctx context.Context) string {
	return CallerFrom(ctx).ID
}
