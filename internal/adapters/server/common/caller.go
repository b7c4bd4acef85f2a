package common

import "context"

type callerKey struct{}

// WithCaller stores the resolved caller identity on ctx.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored by WithCaller, or "" for anonymous.
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
