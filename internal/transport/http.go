package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/torosent/uristat/internal/tracing"
	"github.com/torosent/uristat/internal/uristat"
)

// HTTPSink POSTs each window as JSON to a collector URL.
type HTTPSink struct {
	url       string
	client    *http.Client
	headers   http.Header
	propagate bool
	closed    atomic.Bool
	counters
}

// HTTPOption configures an HTTPSink.
type HTTPOption func(*HTTPSink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSink) { s.headers.Add(key, value) }
}

// WithHTTPPropagation injects W3C trace context into requests.
func WithHTTPPropagation(enabled bool) HTTPOption {
	return func(s *HTTPSink) { s.propagate = enabled }
}

// NewHTTPSink creates a sink posting to url.
func NewHTTPSink(url string, opts ...HTTPOption) *HTTPSink {
	s := &HTTPSink{
		url:     url,
		client:  newHTTPClient(30 * time.Second),
		headers: http.Header{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (s *HTTPSink) Send(ctx context.Context, snap uristat.Snapshot) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return s.record(len(data), s.post(ctx, data))
}

func (s *HTTPSink) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range s.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if s.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post window: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned %s", resp.Status)
	}
	return nil
}

// Stats returns the sink's traffic counters.
func (s *HTTPSink) Stats() Stats { return s.counters.snapshot() }

func (s *HTTPSink) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.client.CloseIdleConnections()
	}
	return nil
}
