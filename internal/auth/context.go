// ABOUTME: Request context carrying the authenticated principal
// ABOUTME: Provides WithPrincipal/FromContext for handlers behind the auth gate

package auth

import (
	"context"

	"github.com/2389/homie/internal/store"
)

// Principal is the identity resolved from a live session.
type Principal struct {
	Session *store.Session
	User    *store.User
}

// UserID returns the authenticated user's id.
func (p *Principal) UserID() string {
	return p.User.ID
}

type principalContextKey struct{}

type operatorContextKey struct{}

// WithPrincipal returns a new context with the principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext retrieves the principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// MustFromContext retrieves the principal from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Principal {
	p := FromContext(ctx)
	if p == nil {
		panic("auth: Principal not found in context")
	}
	return p
}

// WithOperator returns a new context carrying the subject of a verified
// operator token.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, operatorContextKey{}, subject)
}

// OperatorFromContext returns the operator subject, or "" if the request was
// not made with an operator token.
func OperatorFromContext(ctx context.Context) string {
	s, _ := ctx.Value(operatorContextKey{}).(string)
	return s
}
