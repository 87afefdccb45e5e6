package extractor

import "fmt"

// Registry holds providers in registration order. It is immutable after
// NewRegistry and safe for concurrent readers.
type Registry struct {
	providers []Provider
	byType    map[Type][]Provider
}

// NewRegistry indexes providers by type. Nil providers are rejected; duplicates
// are kept.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: make([]Provider, 0, len(providers)),
		byType:    make(map[Type][]Provider),
	}
	for idx, p := range providers {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", idx)
		}
		r.providers = append(r.providers, p)
		r.byType[p.Type()] = append(r.byType[p.Type()], p)
	}
	return r, nil
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.providers)
}

// Providers returns all providers in registration order.
func (r *Registry) Providers() []Provider {
	if r == nil {
		return nil
	}
	return append([]Provider(nil), r.providers...)
}

// Lookup returns the providers registered under typ that implement T, in
// registration order. The result is never nil.
func Lookup[T any](r *Registry, typ Type) []T {
	if r == nil {
		return []T{}
	}
	candidates := r.byType[typ]
	out := make([]T, 0, len(candidates))
	for _, p := range candidates {
		if capability, ok := p.(T); ok {
			out = append(out, capability)
		}
	}
	return out
}
