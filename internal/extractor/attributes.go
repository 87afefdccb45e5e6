package extractor

import (
	"context"
	"sync"
)

type attributesKey struct{}

// attributes is the per-request attribute bag read by request_attribute
// providers. Handlers may write to it from any goroutine.
type attributes struct {
	mu     sync.RWMutex
	values map[string]string
}

// WithAttributes returns a context carrying an empty attribute bag. If ctx
// already carries one it is returned unchanged.
func WithAttributes(ctx context.Context) context.Context {
	if _, ok := ctx.Value(attributesKey{}).(*attributes); ok {
		return ctx
	}
	return context.WithValue(ctx, attributesKey{}, &attributes{values: map[string]string{}})
}

// SetAttribute stores a request attribute. It reports false when ctx was not
// prepared with WithAttributes.
func SetAttribute(ctx context.Context, name, value string) bool {
	attrs, ok := ctx.Value(attributesKey{}).(*attributes)
	if !ok {
		return false
	}
	attrs.mu.Lock()
	attrs.values[name] = value
	attrs.mu.Unlock()
	return true
}

// Attribute reads a request attribute.
func Attribute(ctx context.Context, name string) (string, bool) {
	attrs, ok := ctx.Value(attributesKey{}).(*attributes)
	if !ok {
		return "", false
	}
	attrs.mu.RLock()
	defer attrs.mu.RUnlock()
	v, ok := attrs.values[name]
	return v, ok
}
