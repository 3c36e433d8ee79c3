package shared

import "context"

type bearerTokenContextKey struct{}

// ContextWithBearerToken stores the raw bearer token of the request in context.
func ContextWithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerTokenContextKey{}, token)
}

// BearerTokenFromContext extracts the raw bearer token, empty when absent.
func BearerTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerTokenContextKey{}).(string)
	return token
}
