package gateway

import "context"

type ctxKey string

const tokenKey ctxKey = "kiosk.api_token"

// WithToken attaches the tab's API token to ctx; requests made with it carry
// a bearer Authorization header.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext extracts the API token if present.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}
