package metrics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/uristat/internal/histogram"
	"github.com/torosent/uristat/internal/uristat"
)

// highestTrackable bounds recorded values, in microseconds.
const highestTrackable = int64(time.Hour / time.Microsecond)

type uriAggregate struct {
	hist     *hdrhistogram.Histogram
	total    int64
	failures int64
	sum      time.Duration
	max      time.Duration
}

// Collector merges windows into cumulative per-URI statistics.
type Collector struct {
	mu       sync.Mutex
	uris     map[string]*uriAggregate
	windows  int64
	dropped  int64
	first    time.Time
	last     time.Time
	rejected int64
}

// URIStats summarizes one URI across all windows.
type URIStats struct {
	Total    int64         `json:"total"`
	Failures int64         `json:"failures"`
	Mean     time.Duration `json:"-"`
	Max      time.Duration `json:"-"`
	P50      time.Duration `json:"-"`
	P90      time.Duration `json:"-"`
	P99      time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MeanMs float64 `json:"mean_ms"`
	MaxMs  float64 `json:"max_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P90Ms  float64 `json:"p90_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats represents aggregated metrics.
type Stats struct {
	Windows  int64               `json:"windows"`
	Total    int64               `json:"total"`
	Failures int64               `json:"failures"`
	Dropped  int64               `json:"dropped"`
	Rejected int64               `json:"rejected,omitempty"`
	Duration time.Duration       `json:"-"`
	URIs     map[string]URIStats `json:"uris"`

	DurationMs float64 `json:"duration_ms"`
}

// SortedURIs returns the URIs ordered by descending total, then name.
func (s Stats) SortedURIs() []string {
	uris := make([]string, 0, len(s.URIs))
	for uri := range s.URIs {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool {
		ti, tj := s.URIs[uris[i]].Total, s.URIs[uris[j]].Total
		if ti == tj {
			return uris[i] < uris[j]
		}
		return ti > tj
	})
	return uris
}

func NewCollector() *Collector {
	return &Collector{uris: make(map[string]*uriAggregate)}
}

// Send merges a window. Windows whose bucket layout version is unknown are
// rejected.
func (c *Collector) Send(_ context.Context, snap uristat.Snapshot) error {
	layout, ok := histogram.LayoutByVersion(snap.BucketVersion)
	if !ok {
		c.mu.Lock()
		c.rejected++
		c.mu.Unlock()
		return fmt.Errorf("window %s: unknown bucket layout version %d", snap.ID, snap.BucketVersion)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.windows++
	c.dropped += snap.Dropped
	if c.first.IsZero() || snap.Start.Before(c.first) {
		c.first = snap.Start
	}
	if snap.End.After(c.last) {
		c.last = snap.End
	}

	for uri, stat := range snap.URIs {
		agg := c.uris[uri]
		if agg == nil {
			agg = &uriAggregate{hist: hdrhistogram.New(1, highestTrackable, 3)}
			c.uris[uri] = agg
		}
		agg.merge(layout, stat)
	}
	return nil
}

// Receive lets a Collector serve as a transport receiver.
func (c *Collector) Receive(ctx context.Context, snap uristat.Snapshot) error {
	return c.Send(ctx, snap)
}

func (a *uriAggregate) merge(layout *histogram.Layout, stat uristat.URIStat) {
	unit := layout.Unit()
	bounds := layout.Bounds()
	for i, n := range stat.Total.Buckets {
		if n <= 0 || i >= len(bounds) {
			continue
		}
		us := (time.Duration(bounds[i]) * unit).Microseconds()
		if us > highestTrackable {
			us = highestTrackable
		}
		_ = a.hist.RecordValues(us, n)
	}
	a.total += stat.Total.Count
	a.failures += stat.Failed.Count
	a.sum += time.Duration(stat.Total.Total) * unit
	if peak := time.Duration(stat.Total.Max) * unit; peak > a.max {
		a.max = peak
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Windows:  c.windows,
		Dropped:  c.dropped,
		Rejected: c.rejected,
		URIs:     make(map[string]URIStats, len(c.uris)),
	}
	if !c.first.IsZero() {
		stats.Duration = c.last.Sub(c.first)
		stats.DurationMs = toMs(stats.Duration)
	}

	for uri, agg := range c.uris {
		s := URIStats{
			Total:    agg.total,
			Failures: agg.failures,
			Max:      agg.max,
		}
		if agg.total > 0 {
			s.Mean = agg.sum / time.Duration(agg.total)
		}
		if agg.hist.TotalCount() > 0 {
			s.P50 = time.Duration(agg.hist.ValueAtQuantile(50)) * time.Microsecond
			s.P90 = time.Duration(agg.hist.ValueAtQuantile(90)) * time.Microsecond
			s.P99 = time.Duration(agg.hist.ValueAtQuantile(99)) * time.Microsecond
		}
		s.MeanMs = toMs(s.Mean)
		s.MaxMs = toMs(s.Max)
		s.P50Ms = toMs(s.P50)
		s.P90Ms = toMs(s.P90)
		s.P99Ms = toMs(s.P99)

		stats.URIs[uri] = s
		stats.Total += s.Total
		stats.Failures += s.Failures
	}
	return stats
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
