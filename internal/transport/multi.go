package transport

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/torosent/uristat/internal/uristat"
)

// MultiSink sends every window to all of its sinks concurrently. Send fails
// if any sink fails; the other sinks still receive the window.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. Nil entries are skipped.
func NewMultiSink(sinks ...Sink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len returns the number of combined sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Send(ctx context.Context, snap uristat.Snapshot) error {
	if len(m.sinks) == 1 {
		return m.sinks[0].Send(ctx, snap)
	}
	errs := make([]error, len(m.sinks))
	var wg sync.WaitGroup
	wg.Add(len(m.sinks))
	for i, s := range m.sinks {
		go func(i int, s Sink) {
			defer wg.Done()
			errs[i] = s.Send(ctx, snap)
		}(i, s)
	}
	wg.Wait()
	return multierr.Combine(errs...)
}

func (m *MultiSink) Close() error {
	var err error
	for _, s := range m.sinks {
		err = multierr.Append(err, s.Close())
	}
	return err
}
