// Package uristat aggregates request latencies per URI over reporting windows.
//
// # Store
//
// The central [Store] type owns the URI to histogram mapping of the current
// window. Request paths call [Store.Record] (or [Store.RecordStatus] to also
// count failures) from any number of goroutines:
//
//	store := uristat.NewStore(uristat.WithCapacity(1000))
//	store.RecordStatus("/users/{id}", 42, false)
//
// The first writer for a URI creates its histograms; later writers share them.
// Once the window holds the configured number of distinct URIs, samples for new
// URIs are dropped and counted instead of evicting existing entries.
//
// # Windows
//
// [Store.Rotate] closes the current window and returns it as an immutable
// [Snapshot]. Rotation is atomic with respect to Record: every sample lands in
// exactly one window, and no sample is written into a window after it has been
// handed out. URIs with no samples are left out of the snapshot.
//
// # Flushing
//
// A [Flusher] rotates the store on a fixed interval and hands each non-empty
// snapshot to a [Sink]:
//
//	flusher := uristat.NewFlusher(store, sink, 30*time.Second)
//	flusher.Start(ctx)
//	defer flusher.Stop(context.Background())
//
// A snapshot that fails to send is dropped, never retried; the next window is
// unaffected.
package uristat
