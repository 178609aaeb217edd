package auth

import "context"

type contextKey string

const contextKeyPrincipal contextKey = "auth.principal"

// WithPrincipal stores the resolved principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext extracts the principal resolved by Middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(contextKeyPrincipal).(Principal)
	if !ok || (!p.IsHuman() && !p.IsDevice()) {
		return Principal{}, false
	}
	return p, true
}
