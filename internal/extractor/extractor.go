// Package extractor decides which string identifies a request endpoint ("URI")
// for latency statistics.
//
// Extraction strategies are registered as providers. Every provider declares a
// [Type], the mechanism it uses to obtain a URI, and implements one or more
// capability interfaces ([MappingProvider], [PatternProvider], [FieldProvider]).
// Callers ask the [Registry] for all providers of a given type that implement a
// given capability:
//
//	reg, err := extractor.NewRegistry(
//		extractor.NewMapping(extractor.TypeRequestAttribute, "uri.template"),
//		extractor.NewPatterns(extractor.TypeRequestPath, "/users/{id}"),
//	)
//	mappings := extractor.Lookup[extractor.MappingProvider](reg, extractor.TypeRequestAttribute)
//
// A [Resolver] turns a registry into a per-request URI lookup for net/http.
package extractor

import (
	"fmt"
	"strings"
)

// Type discriminates the mechanism a provider uses to obtain a URI.
type Type string

const (
	// TypeNone is the sentinel for providers that extract nothing.
	TypeNone Type = "none"
	// TypeRequestAttribute reads a named attribute attached to the request by
	// application code, or a request header of the same name.
	TypeRequestAttribute Type = "request_attribute"
	// TypeRequestPath normalises the raw request path with templates.
	TypeRequestPath Type = "request_path"
	// TypeRequestBody reads a field of a JSON request body (e.g. a JSON-RPC method).
	TypeRequestBody Type = "request_body"
)

// Types lists every known extractor type.
var Types = []Type{TypeNone, TypeRequestAttribute, TypeRequestPath, TypeRequestBody}

func (t Type) String() string { return string(t) }

// ParseType maps a configuration string to a Type. Matching ignores case and
// accepts '-' in place of '_'.
func ParseType(s string) (Type, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if normalized == "" {
		return TypeNone, nil
	}
	for _, t := range Types {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown extractor type %q", s)
}

// Provider is the registration contract shared by all extraction strategies.
// The type returned by Type must not change after construction.
type Provider interface {
	Type() Type
}

// MappingProvider resolves a URI from named request parameters, tried in order.
type MappingProvider interface {
	Provider
	Parameters() []string
}

// PatternProvider normalises raw request paths with templates such as
// "/users/{id}". A pattern starting with '~' is a regular expression whose first
// capture group (or full match) becomes the URI.
type PatternProvider interface {
	Provider
	Patterns() []string
}

// FieldProvider reads URI candidates from JSON body fields ("method", "$.op.name").
type FieldProvider interface {
	Provider
	Fields() []string
}
