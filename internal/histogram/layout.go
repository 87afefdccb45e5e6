package histogram

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Layout is an immutable, versioned partition of the non-negative latency
// domain. Bucket i covers [bounds[i], bounds[i+1]); the last bucket is the
// overflow bucket and has no upper bound.
//
// The version byte travels with every histogram on the wire. Bounds must never
// change meaning under a published version.
type Layout struct {
	version byte
	unit    time.Duration
	bounds  []int64
}

// DefaultLayout is version 0: millisecond buckets
// [0,100) [100,300) [300,500) [500,1000) [1000,3000) [3000,5000) [5000,8000) [8000,∞).
var DefaultLayout = MustLayout(0, time.Millisecond, 0, 100, 300, 500, 1000, 3000, 5000, 8000)

var (
	layoutsMu sync.RWMutex
	layouts   = map[byte]*Layout{}
)

func init() {
	if err := Register(DefaultLayout); err != nil {
		panic(err)
	}
}

// NewLayout builds a layout from the lower bound of every bucket. The first
// bound must be 0 and bounds must be strictly increasing.
func NewLayout(version byte, unit time.Duration, bounds ...int64) (*Layout, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("layout v%d: at least one bound is required", version)
	}
	if bounds[0] != 0 {
		return nil, fmt.Errorf("layout v%d: first bound must be 0, got %d", version, bounds[0])
	}
	for i := 1; i < len(bounds); i++ {
		if bounds[i] <= bounds[i-1] {
			return nil, fmt.Errorf("layout v%d: bounds must be strictly increasing (index %d: %d <= %d)", version, i, bounds[i], bounds[i-1])
		}
	}
	if unit <= 0 {
		unit = time.Millisecond
	}
	return &Layout{
		version: version,
		unit:    unit,
		bounds:  append([]int64(nil), bounds...),
	}, nil
}

// MustLayout is like NewLayout but panics on invalid bounds. Intended for
// package-level layout tables.
func MustLayout(version byte, unit time.Duration, bounds ...int64) *Layout {
	l, err := NewLayout(version, unit, bounds...)
	if err != nil {
		panic(err)
	}
	return l
}

// Version returns the wire compatibility version of the layout.
func (l *Layout) Version() byte { return l.version }

// Unit is the duration represented by one elapsed-time unit.
func (l *Layout) Unit() time.Duration { return l.unit }

// BucketCount returns the number of buckets, overflow bucket included.
func (l *Layout) BucketCount() int { return len(l.bounds) }

// Bounds returns a copy of the lower bound of every bucket.
func (l *Layout) Bounds() []int64 {
	return append([]int64(nil), l.bounds...)
}

// Index maps an elapsed value to its bucket. Negative values land in bucket 0.
func (l *Layout) Index(elapsed int64) int {
	if elapsed <= 0 {
		return 0
	}
	return sort.Search(len(l.bounds), func(i int) bool { return l.bounds[i] > elapsed }) - 1
}

// Value converts a duration into the layout's unit, truncating.
func (l *Layout) Value(d time.Duration) int64 {
	return int64(d / l.unit)
}

// Equal reports whether two layouts partition the domain identically.
func (l *Layout) Equal(other *Layout) bool {
	if l == other {
		return true
	}
	if l == nil || other == nil || l.version != other.version || l.unit != other.unit || len(l.bounds) != len(other.bounds) {
		return false
	}
	for i := range l.bounds {
		if l.bounds[i] != other.bounds[i] {
			return false
		}
	}
	return true
}

func (l *Layout) String() string {
	return fmt.Sprintf("layout v%d %v (%s)", l.version, l.bounds, l.unit)
}

// Register makes a layout resolvable by its version. Registering the same
// layout twice is a no-op; registering different bounds under a version that is
// already taken is an error.
func Register(l *Layout) error {
	if l == nil {
		return fmt.Errorf("layout cannot be nil")
	}
	layoutsMu.Lock()
	defer layoutsMu.Unlock()
	if existing, ok := layouts[l.version]; ok {
		if existing.Equal(l) {
			return nil
		}
		return fmt.Errorf("layout version %d already registered with different bounds", l.version)
	}
	layouts[l.version] = l
	return nil
}

// LayoutByVersion returns the registered layout for a wire version.
func LayoutByVersion(version byte) (*Layout, bool) {
	layoutsMu.RLock()
	defer layoutsMu.RUnlock()
	l, ok := layouts[version]
	return l, ok
}
