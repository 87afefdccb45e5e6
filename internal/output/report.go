package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/torosent/uristat/internal/metrics"
)

// PrintReport prints a human-readable summary of the merged windows.
func PrintReport(w io.Writer, stats metrics.Stats) {
	fmt.Fprintln(w, "\n--- URI Statistics ---")
	fmt.Fprintf(w, "Windows:         %d\n", stats.Windows)
	fmt.Fprintf(w, "Total Requests:  %d\n", stats.Total)
	fmt.Fprintf(w, "Failures:        %d\n", stats.Failures)
	if stats.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:         %d\n", stats.Dropped)
	}
	if stats.Rejected > 0 {
		fmt.Fprintf(w, "Rejected:        %d\n", stats.Rejected)
	}
	fmt.Fprintf(w, "Duration:        %s\n", stats.Duration.Round(time.Millisecond))

	if len(stats.URIs) == 0 {
		fmt.Fprintln(w, "\nNo URIs recorded.")
		fmt.Fprintln(w, "----------------------")
		return
	}

	fmt.Fprintln(w, "\nURI Breakdown:")
	for _, uri := range stats.SortedURIs() {
		s := stats.URIs[uri]
		share := 0.0
		if stats.Total > 0 {
			share = float64(s.Total) / float64(stats.Total) * 100
		}
		fmt.Fprintf(w, "  %s\n", uri)
		fmt.Fprintf(w, "    Requests: %d (%.1f%%)  Failures: %d\n", s.Total, share, s.Failures)
		fmt.Fprintf(w, "    Latency:  mean %s  p50 %s  p90 %s  p99 %s  max %s\n",
			formatLatency(s.Mean), formatLatency(s.P50), formatLatency(s.P90), formatLatency(s.P99), formatLatency(s.Max))
	}
	fmt.Fprintln(w, "----------------------")
}

// PrintJSONReport writes the statistics as indented JSON.
func PrintJSONReport(w io.Writer, stats metrics.Stats) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(stats)
}

func formatLatency(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
}
