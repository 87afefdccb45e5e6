package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/torosent/uristat/internal/uristat"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: sink closed")

const userAgent = "uristat-agent"

// Sink is a uristat.Sink holding a connection or file that must be released.
type Sink interface {
	uristat.Sink
	Close() error
}

// Encode renders a window as the wire JSON document.
func Encode(snap uristat.Snapshot) ([]byte, error) {
	if snap.URIs == nil {
		snap.URIs = map[string]uristat.URIStat{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode window %s: %w", snap.ID, err)
	}
	return data, nil
}

// Decode parses a wire JSON document.
func Decode(data []byte) (uristat.Snapshot, error) {
	var snap uristat.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return uristat.Snapshot{}, fmt.Errorf("decode window: %w", err)
	}
	return snap, nil
}

// Stats counts the traffic of one sink.
type Stats struct {
	Sent      int64
	BytesSent int64
	Errors    int64
}

type counters struct {
	sent   atomic.Int64
	bytes  atomic.Int64
	errors atomic.Int64
}

func (c *counters) record(n int, err error) error {
	if err != nil {
		c.errors.Add(1)
		return err
	}
	c.sent.Add(1)
	c.bytes.Add(int64(n))
	return nil
}

func (c *counters) snapshot() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		BytesSent: c.bytes.Load(),
		Errors:    c.errors.Load(),
	}
}
