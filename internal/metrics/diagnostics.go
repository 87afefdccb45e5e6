package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/torosent/uristat/internal/uristat"
)

const namespace = "uristat"

// Diagnostics exposes the agent's own counters to Prometheus.
type Diagnostics struct {
	collectors []prometheus.Collector
}

// NewDiagnostics registers the agent metrics on reg. A nil flusher omits the
// snapshot counters.
func NewDiagnostics(reg prometheus.Registerer, store *uristat.Store, flusher *uristat.Flusher) (*Diagnostics, error) {
	d := &Diagnostics{}
	d.collectors = append(d.collectors,
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Samples accepted into a window.",
		}, func() float64 { return float64(store.Recorded()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_samples_total",
			Help:      "Samples rejected because the window reached its URI capacity.",
		}, func() float64 { return float64(store.Dropped()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clamped_samples_total",
			Help:      "Samples with a negative elapsed time, recorded as 0.",
		}, func() float64 { return float64(store.Clamped()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_uris",
			Help:      "Distinct URIs in the current window.",
		}, func() float64 { return float64(store.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_capacity",
			Help:      "Maximum distinct URIs per window.",
		}, func() float64 { return float64(store.Capacity()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bucket_layout_version",
			Help:      "Histogram bucket layout version in use.",
		}, func() float64 { return float64(store.Layout().Version()) }),
	)
	if flusher != nil {
		d.collectors = append(d.collectors,
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_sent_total",
				Help:      "Windows delivered to the sink.",
			}, func() float64 { return float64(flusher.Sent()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_failed_total",
				Help:      "Windows dropped after a failed send.",
			}, func() float64 { return float64(flusher.Failed()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_skipped_total",
				Help:      "Empty windows that were not sent.",
			}, func() float64 { return float64(flusher.Skipped()) }),
		)
	}

	var (
		err        error
		registered []prometheus.Collector
	)
	for _, c := range d.collectors {
		if regErr := reg.Register(c); regErr != nil {
			err = multierr.Append(err, regErr)
			continue
		}
		registered = append(registered, c)
	}
	if err != nil {
		for _, c := range registered {
			reg.Unregister(c)
		}
		return nil, err
	}
	return d, nil
}

// Unregister removes the metrics from reg.
func (d *Diagnostics) Unregister(reg prometheus.Registerer) {
	for _, c := range d.collectors {
		reg.Unregister(c)
	}
}
