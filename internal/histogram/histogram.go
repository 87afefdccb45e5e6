// Package histogram provides the fixed-shape latency distribution recorded for
// a single URI during one reporting window.
package histogram

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Histogram records count, total, max and bucketed counts of elapsed values.
// All methods are safe for concurrent use without external locking. Fields are
// updated independently, so a reader may see count ahead of total while writers
// are active; use Snapshot after the histogram is no longer written to.
type Histogram struct {
	layout  *Layout
	count   atomic.Int64
	total   atomic.Int64
	max     atomic.Int64
	clamped atomic.Int64
	buckets []atomic.Int64
}

// Snapshot is a plain copy of a histogram, as shipped to the collector.
type Snapshot struct {
	Count   int64   `json:"count"`
	Total   int64   `json:"total"`
	Max     int64   `json:"max"`
	Buckets []int64 `json:"buckets"`
	Version byte    `json:"bucket_version"`
	Clamped int64   `json:"clamped,omitempty"`
}

// New returns an empty histogram bound to layout. A nil layout selects
// DefaultLayout.
func New(layout *Layout) *Histogram {
	if layout == nil {
		layout = DefaultLayout
	}
	return &Histogram{
		layout:  layout,
		buckets: make([]atomic.Int64, layout.BucketCount()),
	}
}

// Add records one sample. Negative values are clamped to 0 and counted in
// Clamped. Total saturates at math.MaxInt64.
func (h *Histogram) Add(elapsed int64) {
	if elapsed < 0 {
		h.clamped.Add(1)
		elapsed = 0
	}
	h.count.Add(1)
	for {
		current := h.total.Load()
		next := current + elapsed
		if next < current {
			next = math.MaxInt64
		}
		if next == current || h.total.CompareAndSwap(current, next) {
			break
		}
	}
	for {
		current := h.max.Load()
		if elapsed <= current || h.max.CompareAndSwap(current, elapsed) {
			break
		}
	}
	h.buckets[h.layout.Index(elapsed)].Add(1)
}

// IsEmpty reports whether no sample has been recorded.
func (h *Histogram) IsEmpty() bool { return h.count.Load() == 0 }

func (h *Histogram) Count() int64 { return h.count.Load() }

func (h *Histogram) Total() int64 { return h.total.Load() }

func (h *Histogram) Max() int64 { return h.max.Load() }

// Clamped returns how many negative samples were clamped to 0.
func (h *Histogram) Clamped() int64 { return h.clamped.Load() }

// BucketCounts returns the current per-bucket counts.
func (h *Histogram) BucketCounts() []int64 {
	out := make([]int64, len(h.buckets))
	for i := range h.buckets {
		out[i] = h.buckets[i].Load()
	}
	return out
}

func (h *Histogram) Layout() *Layout { return h.layout }

// Version returns the bucket layout version.
func (h *Histogram) Version() byte { return h.layout.Version() }

// Snapshot copies the current values.
func (h *Histogram) Snapshot() Snapshot {
	return Snapshot{
		Count:   h.count.Load(),
		Total:   h.total.Load(),
		Max:     h.max.Load(),
		Buckets: h.BucketCounts(),
		Version: h.layout.Version(),
		Clamped: h.clamped.Load(),
	}
}

func (h *Histogram) String() string {
	return fmt.Sprintf("Histogram{count=%d, total=%d, max=%d, buckets=%v}", h.Count(), h.Total(), h.Max(), h.BucketCounts())
}

// IsEmpty reports whether the snapshot holds no samples.
func (s Snapshot) IsEmpty() bool { return s.Count == 0 }

// Mean returns total/count, or 0 for an empty snapshot.
func (s Snapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Total) / float64(s.Count)
}
