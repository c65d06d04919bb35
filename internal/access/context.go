package access

import (
	"context"

	"github.com/alecgard/okrtracker/internal/auth"
)

type contextKey int

const (
	scopeKey contextKey = iota
	membershipKey
)

// ContextWithScope returns a new context carrying s.
func ContextWithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// ScopeFromContext returns the request's Scope, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey).(*Scope)
	return s
}

// ContextWithMembership records the membership resolved for the current route.
func ContextWithMembership(ctx context.Context, m auth.Membership) context.Context {
	return context.WithValue(ctx, membershipKey, m)
}

// MembershipFromContext returns the membership resolved for the current route.
func MembershipFromContext(ctx context.Context) (auth.Membership, bool) {
	m, ok := ctx.Value(membershipKey).(auth.Membership)
	return m, ok
}
