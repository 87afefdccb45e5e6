// Package metrics turns closed uristat windows into cumulative statistics and
// exposes the agent's own health as Prometheus metrics.
//
// # Collector
//
// [Collector] is a sink that merges every window it receives. Bucket counts
// are replayed into an HdrHistogram at each bucket's lower bound, so the
// percentiles it reports are lower-bound estimates at bucket resolution:
//
//	collector := metrics.NewCollector()
//	flusher := uristat.NewFlusher(store, collector, 30*time.Second)
//	...
//	stats := collector.Stats()
//
// # Diagnostics
//
// [Diagnostics] registers counters and gauges that read the store and flusher
// on scrape, so recording samples never touches Prometheus:
//
//	diag, err := metrics.NewDiagnostics(prometheus.DefaultRegisterer, store, flusher)
package metrics
