package extractor

import (
	"fmt"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tidwall/gjson"
)

const (
	defaultCacheSize = 4096
	defaultMaxBody   = 64 * 1024
)

// Resolver derives a URI for an HTTP request from the providers of a Registry.
// Sources are tried in order: request attributes, JSON body fields, path
// templates, then (optionally) the raw path. An empty result means "unknown".
type Resolver struct {
	attributes   []string
	fields       []string
	matchers     []*pathMatcher
	cache        *lru.Cache[string, string]
	rawFallback  bool
	methodPrefix bool
	maxBody      int64
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRawPathFallback uses the raw request path when nothing else matched.
func WithRawPathFallback(enabled bool) ResolverOption {
	return func(r *Resolver) { r.rawFallback = enabled }
}

// WithMethodPrefix prefixes resolved URIs with the HTTP method ("GET /users/{id}").
func WithMethodPrefix(enabled bool) ResolverOption {
	return func(r *Resolver) { r.methodPrefix = enabled }
}

// WithMaxBody limits how many body bytes are inspected by field providers.
func WithMaxBody(n int64) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.maxBody = n
		}
	}
}

// NewResolver compiles the request_attribute, request_body and request_path
// providers of reg. Providers registered under TypeNone are ignored.
func NewResolver(reg *Registry, cacheSize int, opts ...ResolverOption) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("path cache: %w", err)
	}

	r := &Resolver{cache: cache, maxBody: defaultMaxBody}
	for _, opt := range opts {
		opt(r)
	}

	for _, p := range Lookup[MappingProvider](reg, TypeRequestAttribute) {
		r.attributes = append(r.attributes, nonEmpty(p.Parameters())...)
	}
	for _, p := range Lookup[FieldProvider](reg, TypeRequestBody) {
		r.fields = append(r.fields, nonEmpty(p.Fields())...)
	}
	for _, p := range Lookup[PatternProvider](reg, TypeRequestPath) {
		for _, pattern := range p.Patterns() {
			m, err := compilePattern(pattern)
			if err != nil {
				return nil, err
			}
			r.matchers = append(r.matchers, m)
		}
	}
	return r, nil
}

// NeedsBody reports whether Resolve inspects request bodies.
func (r *Resolver) NeedsBody() bool { return len(r.fields) > 0 }

// MaxBody is the number of body bytes callers should buffer for Resolve.
func (r *Resolver) MaxBody() int64 { return r.maxBody }

// Resolve returns the URI for req. body holds the buffered request body (may be
// nil); it is only read for JSON requests.
func (r *Resolver) Resolve(req *http.Request, body []byte) string {
	uri := r.resolve(req, body)
	if uri != "" && r.methodPrefix {
		return req.Method + " " + uri
	}
	return uri
}

func (r *Resolver) resolve(req *http.Request, body []byte) string {
	for _, name := range r.attributes {
		if v, ok := Attribute(req.Context(), name); ok && v != "" {
			return v
		}
		if v := req.Header.Get(name); v != "" {
			return v
		}
	}

	// A body cut at MaxBody is not valid JSON and is skipped.
	if len(body) > 0 && len(r.fields) > 0 && isJSON(req) && gjson.ValidBytes(body) {
		for _, field := range r.fields {
			if v := findJSONField(body, field); v != "" {
				return v
			}
		}
	}

	path := req.URL.Path
	if path == "" {
		path = "/"
	}
	if len(r.matchers) > 0 {
		if uri := r.matchPath(path); uri != "" {
			return uri
		}
	}

	if r.rawFallback {
		return path
	}
	return ""
}

// matchPath runs the path matchers, memoising results (misses included).
func (r *Resolver) matchPath(path string) string {
	if uri, ok := r.cache.Get(path); ok {
		return uri
	}
	uri := ""
	for _, m := range r.matchers {
		if uri = m.match(path); uri != "" {
			break
		}
	}
	r.cache.Add(path, uri)
	return uri
}

func isJSON(req *http.Request) bool {
	ct := strings.ToLower(req.Header.Get("Content-Type"))
	return ct == "" || strings.Contains(ct, "json")
}

func nonEmpty(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
