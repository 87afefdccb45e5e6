package metrics_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/uristat/internal/metrics"
	"github.com/torosent/uristat/internal/uristat"
)

func TestDiagnosticsReflectStoreAndFlusher(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := uristat.NewStore(uristat.WithCapacity(2))
	fail := true
	flusher := uristat.NewFlusher(store, uristat.SinkFunc(func(context.Context, uristat.Snapshot) error {
		if fail {
			return errors.New("down")
		}
		return nil
	}), time.Minute)

	_, err := metrics.NewDiagnostics(reg, store, flusher)
	require.NoError(t, err)

	store.Record("/a", 1)
	store.Record("/b", 1)
	store.Record("/c", 1)
	store.Record("/a", -5)

	expected := `
# HELP uristat_clamped_samples_total Samples with a negative elapsed time, recorded as 0.
# TYPE uristat_clamped_samples_total counter
uristat_clamped_samples_total 1
# HELP uristat_dropped_samples_total Samples rejected because the window reached its URI capacity.
# TYPE uristat_dropped_samples_total counter
uristat_dropped_samples_total 1
# HELP uristat_samples_total Samples accepted into a window.
# TYPE uristat_samples_total counter
uristat_samples_total 3
# HELP uristat_window_uris Distinct URIs in the current window.
# TYPE uristat_window_uris gauge
uristat_window_uris 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"uristat_samples_total", "uristat_dropped_samples_total", "uristat_window_uris", "uristat_clamped_samples_total"))

	_ = flusher.Flush(context.Background())
	fail = false
	store.Record("/a", 1)
	require.NoError(t, flusher.Flush(context.Background()))
	require.NoError(t, flusher.Flush(context.Background()))

	expected = `
# HELP uristat_snapshots_failed_total Windows dropped after a failed send.
# TYPE uristat_snapshots_failed_total counter
uristat_snapshots_failed_total 1
# HELP uristat_snapshots_sent_total Windows delivered to the sink.
# TYPE uristat_snapshots_sent_total counter
uristat_snapshots_sent_total 1
# HELP uristat_snapshots_skipped_total Empty windows that were not sent.
# TYPE uristat_snapshots_skipped_total counter
uristat_snapshots_skipped_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"uristat_snapshots_sent_total", "uristat_snapshots_failed_total", "uristat_snapshots_skipped_total"))
}

func TestDiagnosticsWithoutFlusher(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewDiagnostics(reg, uristat.NewStore(), nil)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}

func TestDiagnosticsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := uristat.NewStore()
	diag, err := metrics.NewDiagnostics(reg, store, nil)
	require.NoError(t, err)

	_, err = metrics.NewDiagnostics(reg, store, nil)
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6, "a failed registration leaves existing metrics alone")

	diag.Unregister(reg)
	_, err = metrics.NewDiagnostics(reg, store, nil)
	assert.NoError(t, err)
}
