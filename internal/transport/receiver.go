package transport

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/torosent/uristat/internal/logging"
)

// MaxWindowBytes bounds a window document accepted by the receivers.
const MaxWindowBytes = 8 << 20

// HTTPReceiver accepts windows POSTed by an HTTPSink.
//
//	405 for other methods, 413 when the body exceeds MaxWindowBytes,
//	400 for an undecodable document, 422 when recv rejects the window.
func HTTPReceiver(recv Receiver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxWindowBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "window too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		snap, err := Decode(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := recv.Receive(r.Context(), snap); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// WebSocketReceiver upgrades the connection and hands every text frame to
// recv. A frame that cannot be decoded or is rejected is logged and skipped.
func WebSocketReceiver(recv Receiver, logger logging.Logger) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(MaxWindowBytes)

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			if err := receiveFrame(r, recv, data); err != nil && logger != nil {
				logger.Warnf("websocket %s: %v", r.RemoteAddr, err)
			}
		}
	})
}

func receiveFrame(r *http.Request, recv Receiver, data []byte) error {
	snap, err := Decode(data)
	if err != nil {
		return err
	}
	if err := recv.Receive(r.Context(), snap); err != nil {
		return fmt.Errorf("window %s: %w", snap.ID, err)
	}
	return nil
}
