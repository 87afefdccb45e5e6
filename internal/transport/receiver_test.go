package transport_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/uristat/internal/transport"
	"github.com/torosent/uristat/internal/uristat"
)

type recordingReceiver struct {
	mu    sync.Mutex
	snaps []uristat.Snapshot
	err   error
}

func (r *recordingReceiver) Receive(_ context.Context, snap uristat.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.snaps = append(r.snaps, snap)
	return nil
}

func (r *recordingReceiver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

type warnRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (w *warnRecorder) Infof(string, ...interface{}) {}

func (w *warnRecorder) Warnf(format string, args ...interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func (w *warnRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.lines)
}

func TestHTTPReceiverAcceptsHTTPSink(t *testing.T) {
	recv := &recordingReceiver{}
	server := httptest.NewServer(transport.HTTPReceiver(recv))
	defer server.Close()

	sink := transport.NewHTTPSink(server.URL)
	defer sink.Close()
	require.NoError(t, sink.Send(context.Background(), sampleSnapshot()))

	require.Equal(t, 1, recv.count())
	assert.Equal(t, int64(3), recv.snaps[0].URIs["/users/{id}"].Total.Count)
	assert.Equal(t, int64(2), recv.snaps[0].Dropped)
}

func TestHTTPReceiverErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		body   string
		recv   error
		want   int
	}{
		{"wrong method", http.MethodGet, "", nil, http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", nil, http.StatusBadRequest},
		{"rejected", http.MethodPost, `{"id":"w1","uris":{}}`, errors.New("unknown layout"), http.StatusUnprocessableEntity},
		{"too large", http.MethodPost, strings.Repeat(" ", transport.MaxWindowBytes+1), nil, http.StatusRequestEntityTooLarge},
		{"ok", http.MethodPost, `{"id":"w1","uris":{}}`, nil, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := transport.HTTPReceiver(&recordingReceiver{err: tt.recv})
			req := httptest.NewRequest(tt.method, "/windows", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestWebSocketReceiverAcceptsWebSocketSink(t *testing.T) {
	recv := &recordingReceiver{}
	server := httptest.NewServer(transport.WebSocketReceiver(recv, nil))
	defer server.Close()

	sink := transport.NewWebSocketSink(transport.WebSocketConfig{URL: "ws" + strings.TrimPrefix(server.URL, "http")})
	defer sink.Close()
	require.NoError(t, sink.Send(context.Background(), sampleSnapshot()))
	require.NoError(t, sink.Send(context.Background(), sampleSnapshot()))

	assert.Eventually(t, func() bool { return recv.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketReceiverSkipsBadFrames(t *testing.T) {
	recv := &recordingReceiver{}
	logger := &warnRecorder{}
	server := httptest.NewServer(transport.WebSocketReceiver(recv, logger))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	data, err := transport.Encode(sampleSnapshot())
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, data))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	assert.Eventually(t, func() bool { return recv.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, logger.count())
}
