// Package middleware records per-URI latency for HTTP handlers.
package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/torosent/uristat/internal/extractor"
	"github.com/torosent/uristat/internal/histogram"
)

// Resolver maps a finished request to its URI template.
type Resolver interface {
	Resolve(r *http.Request, body []byte) string
	NeedsBody() bool
	MaxBody() int64
}

// Recorder receives one sample per request.
type Recorder interface {
	RecordStatus(uri string, elapsed int64, failed bool)
	Layout() *histogram.Layout
}

type options struct {
	clock  clock.Clock
	failed func(status int) bool
}

// Option configures Handler.
type Option func(*options)

// WithClock sets the clock used to time requests.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithFailureClassifier decides which status codes count as failures. The
// default is any 5xx.
func WithFailureClassifier(fn func(status int) bool) Option {
	return func(o *options) {
		if fn != nil {
			o.failed = fn
		}
	}
}

// responseWriter is a wrapper around http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		if !rw.wroteHeader {
			rw.wroteHeader = true
		}
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Handler times every request served by next and records it under the URI
// returned by resolver. The URI is resolved after next returns so attributes
// published with SetAttribute are visible. A panic in next is recorded as a
// failure and re-raised.
func Handler(resolver Resolver, rec Recorder, next http.Handler, opts ...Option) http.Handler {
	o := options{
		clock:  clock.New(),
		failed: func(status int) bool { return status >= http.StatusInternalServerError },
	}
	for _, opt := range opts {
		opt(&o)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := o.clock.Now()
		r = r.WithContext(extractor.WithAttributes(r.Context()))

		var body []byte
		if resolver.NeedsBody() && r.Body != nil && r.Body != http.NoBody {
			body = peekBody(r, resolver.MaxBody())
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		finished := false
		defer func() {
			if finished {
				return
			}
			p := recover()
			record(resolver, rec, r, body, o.clock.Since(start), true)
			if p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(rw, r)
		finished = true
		record(resolver, rec, r, body, o.clock.Since(start), o.failed(rw.statusCode))
	})
}

func record(resolver Resolver, rec Recorder, r *http.Request, body []byte, elapsed time.Duration, failed bool) {
	uri := resolver.Resolve(r, body)
	rec.RecordStatus(uri, rec.Layout().Value(elapsed), failed)
}

// peekBody reads up to max bytes of the request body and puts them back in
// front of the unread remainder.
func peekBody(r *http.Request, max int64) []byte {
	if max <= 0 {
		return nil
	}
	buf, err := io.ReadAll(io.LimitReader(r.Body, max))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), errReader{err}, rest), rest}
	if err != nil {
		return nil
	}
	return buf
}

// errReader replays a read error hit while peeking.
type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	return 0, io.EOF
}

// SetAttribute publishes a request attribute for request_attribute
// extraction. It reports false outside Handler.
func SetAttribute(r *http.Request, name, value string) bool {
	return extractor.SetAttribute(r.Context(), name, value)
}
