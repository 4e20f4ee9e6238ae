package apiclient

import "context"

type retriedKey struct{}

// withRetried marks the request carrying ctx as already re-issued after a
// refresh. A retried request is never refreshed again.
func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}
