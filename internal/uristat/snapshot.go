package uristat

import (
	"sort"
	"time"

	"github.com/torosent/uristat/internal/histogram"
)

// URIStat holds the histograms of one URI for one window. Failed samples are
// counted in both Total and Failed.
type URIStat struct {
	Total  histogram.Snapshot `json:"total"`
	Failed histogram.Snapshot `json:"failed"`
}

// Snapshot is a closed reporting window. It is never modified after Rotate
// returns it.
type Snapshot struct {
	ID            string             `json:"id"`
	Start         time.Time          `json:"start"`
	End           time.Time          `json:"end"`
	BucketVersion byte               `json:"bucket_version"`
	Dropped       int64              `json:"dropped"`
	URIs          map[string]URIStat `json:"uris"`
}

// IsEmpty reports whether the window recorded no URI.
func (s Snapshot) IsEmpty() bool { return len(s.URIs) == 0 }

// Duration is the length of the window.
func (s Snapshot) Duration() time.Duration { return s.End.Sub(s.Start) }

// Total returns the number of samples in the window.
func (s Snapshot) Total() int64 {
	var total int64
	for _, stat := range s.URIs {
		total += stat.Total.Count
	}
	return total
}

// SortedURIs returns the URIs ordered by descending sample count, then name.
func (s Snapshot) SortedURIs() []string {
	uris := make([]string, 0, len(s.URIs))
	for uri := range s.URIs {
		uris = append(uris, uri)
	}
	sort.Slice(uris, func(i, j int) bool {
		ci, cj := s.URIs[uris[i]].Total.Count, s.URIs[uris[j]].Total.Count
		if ci == cj {
			return uris[i] < uris[j]
		}
		return ci > cj
	})
	return uris
}
