package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/uristat/internal/uristat"
)

// FileSink appends one JSON line per window. Writers in other processes
// sharing the same path are serialized through a lock file next to it.
type FileSink struct {
	path string
	lock *flock.Flock

	mu     sync.Mutex
	closed bool
	counters
}

// NewFileSink creates a sink appending to path. The lock file is path+".lock".
func NewFileSink(path string) *FileSink {
	return &FileSink{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *FileSink) Send(ctx context.Context, snap uristat.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.record(len(data), s.append(ctx, data))
}

func (s *FileSink) append(ctx context.Context, data []byte) error {
	locked, err := s.lock.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return f.Close()
}

// Stats returns the sink's traffic counters.
func (s *FileSink) Stats() Stats { return s.counters.snapshot() }

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.lock.Close()
}
