package uristat

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/torosent/uristat/internal/histogram"
)

const (
	// UnknownURI is recorded when no URI could be resolved for a request.
	UnknownURI = "UNKNOWN"
	// DefaultCapacity is the default number of distinct URIs per window.
	DefaultCapacity = 1000
)

// Logger interface for warning output.
type Logger interface {
	Warnf(format string, args ...interface{})
}

type entry struct {
	total  *histogram.Histogram
	failed *histogram.Histogram
}

// window is the mutable state of one reporting window.
type window struct {
	start    time.Time
	entries  sync.Map // string -> *entry
	createMu sync.Mutex
	size     atomic.Int64
	dropped  atomic.Int64
	writers  atomic.Int64
	closed   atomic.Bool
}

// Store aggregates latencies per URI for the current window.
type Store struct {
	current  atomic.Pointer[window]
	rotateMu sync.Mutex

	capacity    int64
	layout      *histogram.Layout
	clock       clock.Clock
	logger      Logger
	dropLimiter *rate.Limiter
	onDrop      func(uri string)

	recorded atomic.Int64
	dropped  atomic.Int64
	clamped  atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity bounds the number of distinct URIs per window.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = int64(n)
		}
	}
}

// WithLayout selects the bucket layout of every histogram.
func WithLayout(l *histogram.Layout) Option {
	return func(s *Store) {
		if l != nil {
			s.layout = l
		}
	}
}

// WithClock sets the clock used for window boundaries.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger logs dropped URIs, at most once per interval.
func WithLogger(logger Logger, every time.Duration) Option {
	return func(s *Store) {
		s.logger = logger
		if every > 0 {
			s.dropLimiter = rate.NewLimiter(rate.Every(every), 1)
		}
	}
}

// WithDropObserver registers a callback invoked for every dropped sample.
func WithDropObserver(fn func(uri string)) Option {
	return func(s *Store) { s.onDrop = fn }
}

// NewStore creates a store with an open window.
func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity:    DefaultCapacity,
		layout:      histogram.DefaultLayout,
		clock:       clock.New(),
		dropLimiter: rate.NewLimiter(rate.Every(time.Minute), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&window{start: s.clock.Now()})
	return s
}

// Layout returns the bucket layout used by the store.
func (s *Store) Layout() *histogram.Layout { return s.layout }

// Capacity returns the maximum number of distinct URIs per window.
func (s *Store) Capacity() int { return int(s.capacity) }

// Record adds a successful sample for uri.
func (s *Store) Record(uri string, elapsed int64) {
	s.RecordStatus(uri, elapsed, false)
}

// RecordStatus adds a sample for uri. Failed samples are counted in the total
// and failed histograms. It never blocks on rotation.
func (s *Store) RecordStatus(uri string, elapsed int64, failed bool) {
	if uri == "" {
		uri = UnknownURI
	}
	for {
		w := s.current.Load()
		w.writers.Add(1)
		if w.closed.Load() {
			// Rotated between Load and Add; the new window is already installed.
			w.writers.Add(-1)
			continue
		}
		ok := s.add(w, uri, elapsed, failed)
		w.writers.Add(-1)

		if ok {
			s.recorded.Add(1)
			if elapsed < 0 {
				s.clamped.Add(1)
			}
			return
		}
		s.dropped.Add(1)
		s.reportDrop(uri)
		return
	}
}

func (s *Store) add(w *window, uri string, elapsed int64, failed bool) bool {
	e, ok := w.lookup(uri)
	if !ok {
		if e, ok = w.create(uri, s.capacity, s.layout); !ok {
			return false
		}
	}

	e.total.Add(elapsed)
	if failed {
		e.failed.Add(elapsed)
	}
	return true
}

func (w *window) lookup(uri string) (*entry, bool) {
	v, ok := w.entries.Load(uri)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// create admits uri unless the window is full. Only a URI that is still
// absent under createMu takes a slot.
func (w *window) create(uri string, capacity int64, layout *histogram.Layout) (*entry, bool) {
	w.createMu.Lock()
	defer w.createMu.Unlock()
	if e, ok := w.lookup(uri); ok {
		return e, true
	}
	if w.size.Load() >= capacity {
		w.dropped.Add(1)
		return nil, false
	}
	e := &entry{total: histogram.New(layout), failed: histogram.New(layout)}
	w.entries.Store(uri, e)
	w.size.Add(1)
	return e, true
}

func (s *Store) reportDrop(uri string) {
	if s.onDrop != nil {
		s.onDrop(uri)
	}
	if s.logger != nil && s.dropLimiter.Allow() {
		s.logger.Warnf("uri capacity of %d reached, dropping samples for new uris such as %q", s.capacity, uri)
	}
}

// Len returns the number of distinct URIs in the current window.
func (s *Store) Len() int { return int(s.current.Load().size.Load()) }

// Recorded returns the number of samples accepted since the store was created.
func (s *Store) Recorded() int64 { return s.recorded.Load() }

// Clamped returns the number of accepted samples whose negative elapsed value
// was recorded as 0.
func (s *Store) Clamped() int64 { return s.clamped.Load() }

// Dropped returns the number of samples rejected by the capacity bound since
// the store was created.
func (s *Store) Dropped() int64 { return s.dropped.Load() }

// Rotate installs a fresh window and returns the closed one. It waits for
// writers still adding to the closed window before copying it.
func (s *Store) Rotate() Snapshot {
	s.rotateMu.Lock()
	defer s.rotateMu.Unlock()

	now := s.clock.Now()
	old := s.current.Swap(&window{start: now})
	old.closed.Store(true)
	for old.writers.Load() != 0 {
		runtime.Gosched()
	}

	snap := Snapshot{
		ID:            ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Start:         old.start,
		End:           now,
		BucketVersion: s.layout.Version(),
		Dropped:       old.dropped.Load(),
		URIs:          make(map[string]URIStat, old.size.Load()),
	}
	old.entries.Range(func(key, value interface{}) bool {
		e := value.(*entry)
		if e.total.IsEmpty() {
			return true
		}
		snap.URIs[key.(string)] = URIStat{
			Total:  e.total.Snapshot(),
			Failed: e.failed.Snapshot(),
		}
		return true
	})
	return snap
}
