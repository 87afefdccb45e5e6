package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/uristat/internal/metrics"
)

// ProgressReporter prints a one-line summary of the merged windows at a
// fixed interval.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates. It is safe to call more than once.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		return
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprintln(p.writer, ProgressLine(p.collector.Stats()))
		case <-p.done:
			return
		}
	}
}

// ProgressLine formats stats as a single status line.
func ProgressLine(stats metrics.Stats) string {
	line := fmt.Sprintf("Windows: %d | Requests: %d | Failures: %d | URIs: %d",
		stats.Windows, stats.Total, stats.Failures, len(stats.URIs))
	if stats.Dropped > 0 {
		line += fmt.Sprintf(" | Dropped: %d", stats.Dropped)
	}
	if uris := stats.SortedURIs(); len(uris) > 0 && stats.Total > 0 {
		top := stats.URIs[uris[0]]
		share := float64(top.Total) / float64(stats.Total) * 100
		line += fmt.Sprintf(" | Top URI: %s (%.0f%%, P99 %.1fms)", uris[0], share, top.P99Ms)
	}
	return line
}
