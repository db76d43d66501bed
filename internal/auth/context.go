package auth

import "context"

type principalCtxKey struct{}

// WithPrincipal installs p into ctx, as AuthMiddleware does after
// verifying a bearer token.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// FromContext returns the Principal installed by AuthMiddleware, or
// the zero value if the request was never authenticated (a public
// path, or a pre-middleware context).
func FromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalCtxKey{}).(Principal)
	return p
}
