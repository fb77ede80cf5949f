package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	setIndexKey contextKey = "set_index"
)

// WithRunID annotates context with the backup run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSetIndex annotates context with the redundancy set being processed.
func WithSetIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, setIndexKey, index)
}

// SetIndexFromContext extracts the redundancy set index if present.
func SetIndexFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(setIndexKey)
	if idx, ok := v.(int); ok {
		return idx, true
	}
	return 0, false
}
