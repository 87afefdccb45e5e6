package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/uristat/internal/uristat"
)

// WebSocketSink writes each window as a text frame. The connection is dialed
// on the first send. A reader goroutine drains inbound frames; when the peer
// closes or the connection breaks, the connection is discarded and the next
// send redials.
type WebSocketSink struct {
	url     string
	headers http.Header
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	dials  int64
	counters
}

// WebSocketConfig configures a WebSocketSink.
type WebSocketConfig struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
}

// NewWebSocketSink creates a sink for cfg.URL.
func NewWebSocketSink(cfg WebSocketConfig) *WebSocketSink {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	headers := cfg.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	if headers.Get("User-Agent") == "" {
		headers.Set("User-Agent", userAgent)
	}
	return &WebSocketSink{
		url:     cfg.URL,
		headers: headers,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

func (s *WebSocketSink) Send(ctx context.Context, snap uristat.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.record(len(data), s.write(ctx, data))
}

func (s *WebSocketSink) write(ctx context.Context, data []byte) error {
	if s.conn == nil {
		conn, resp, err := s.dialer.DialContext(ctx, s.url, s.headers)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
			}
			return fmt.Errorf("websocket dial failed: %w", err)
		}
		s.conn = conn
		s.dials++
		go s.readLoop(conn)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = s.conn.SetWriteDeadline(deadline)

	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = s.conn.Close()
		s.conn = nil
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readLoop discards inbound frames until conn fails. The default close handler
// answers a close frame before NextReader reports it.
func (s *WebSocketSink) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			s.discard(conn)
			return
		}
	}
}

func (s *WebSocketSink) discard(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = conn.Close()
		s.conn = nil
	}
}

// Dials returns how many connections the sink has opened.
func (s *WebSocketSink) Dials() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// Stats returns the sink's traffic counters.
func (s *WebSocketSink) Stats() Stats { return s.counters.snapshot() }

// Close sends a close frame and releases the connection.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.conn == nil {
		return nil
	}

	err := s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(5*time.Second),
	)
	closeErr := s.conn.Close()
	s.conn = nil
	if err != nil {
		return err
	}
	return closeErr
}
