package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/uristat/internal/config"
	"github.com/torosent/uristat/internal/extractor"
	"github.com/torosent/uristat/internal/logging"
	"github.com/torosent/uristat/internal/metrics"
	"github.com/torosent/uristat/internal/middleware"
	"github.com/torosent/uristat/internal/output"
	"github.com/torosent/uristat/internal/tracing"
	"github.com/torosent/uristat/internal/transport"
	"github.com/torosent/uristat/internal/uristat"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	dropLogInterval   = time.Minute
)

// agent wires the store, flusher and sinks behind an instrumented proxy.
type agent struct {
	cfg       *config.Config
	log       *zap.SugaredLogger
	tracing   *tracing.Provider
	store     *uristat.Store
	flusher   *uristat.Flusher
	sinks     *transport.MultiSink
	collector *metrics.Collector
	registry  *prometheus.Registry
	handler   http.Handler
}

func runProxy(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	zl, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	a, err := newAgent(ctx, cfg, zl.Sugar())
	if err != nil {
		return err
	}
	runErr := a.serve(ctx)
	stats := a.shutdown()

	if cfg.JSONReport {
		if err := output.PrintJSONReport(stdout, stats); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, stats)
	}
	return runErr
}

func newAgent(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*agent, error) {
	layout, err := cfg.Layout()
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	for _, p := range reg.Providers() {
		log.Debugf("extractor provider %s registered", p.Type())
	}
	resolver, err := extractor.NewResolver(reg, cfg.CacheSize,
		extractor.WithRawPathFallback(cfg.RawPathFallback),
		extractor.WithMethodPrefix(cfg.MethodPrefix),
		extractor.WithMaxBody(cfg.MaxBodyBytes),
	)
	if err != nil {
		return nil, err
	}
	upstream, err := url.Parse(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}

	hostname, _ := os.Hostname()
	tp, err := tracing.Init(ctx, cfg.Tracing,
		tracing.WithLayoutVersion(layout.Version()),
		tracing.WithAgentID(hostname),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	sinks, err := buildSinks(cfg, tp.ShouldPropagate())
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, err
	}
	if sinks.Len() == 0 {
		log.Warnf("no sinks configured; windows are only merged into the shutdown report")
	}

	a := &agent{
		cfg:       cfg,
		log:       log,
		tracing:   tp,
		sinks:     sinks,
		collector: metrics.NewCollector(),
		registry:  prometheus.NewRegistry(),
	}
	a.store = uristat.NewStore(
		uristat.WithCapacity(cfg.Capacity),
		uristat.WithLayout(layout),
		uristat.WithLogger(log, dropLogInterval),
	)
	report := uristat.SinkFunc(func(ctx context.Context, snap uristat.Snapshot) error {
		return multierr.Append(a.collector.Send(ctx, snap), sinks.Send(ctx, snap))
	})
	a.flusher = uristat.NewFlusher(a.store, report, cfg.Window,
		uristat.WithSendTimeout(cfg.SendTimeout),
		uristat.WithTracer(tp.Tracer()),
		uristat.WithFlushLogger(log),
	)
	if _, err := metrics.NewDiagnostics(a.registry, a.store, a.flusher); err != nil {
		_ = sinks.Close()
		_ = tp.Shutdown(context.Background())
		return nil, err
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warnf("upstream %s %s: %v", r.Method, r.URL.Path, err)
		w.WriteHeader(http.StatusBadGateway)
	}
	a.handler = middleware.Handler(resolver, a.store, proxy)
	return a, nil
}

func buildSinks(cfg *config.Config, propagate bool) (*transport.MultiSink, error) {
	var sinks []transport.Sink
	s := cfg.Sinks
	if s.HTTPURL != "" {
		sinks = append(sinks, transport.NewHTTPSink(s.HTTPURL, transport.WithHTTPPropagation(propagate)))
	}
	if s.GRPCTarget != "" {
		grpcSink, err := transport.NewGRPCSink(transport.GRPCConfig{
			Target:    s.GRPCTarget,
			Insecure:  s.GRPCInsecure,
			Propagate: propagate,
		})
		if err != nil {
			_ = transport.NewMultiSink(sinks...).Close()
			return nil, fmt.Errorf("grpc sink: %w", err)
		}
		sinks = append(sinks, grpcSink)
	}
	if s.WebSocketURL != "" {
		sinks = append(sinks, transport.NewWebSocketSink(transport.WebSocketConfig{URL: s.WebSocketURL}))
	}
	if s.File != "" {
		sinks = append(sinks, transport.NewFileSink(s.File))
	}
	return transport.NewMultiSink(sinks...), nil
}

func (a *agent) serve(ctx context.Context) error {
	servers := []*http.Server{{
		Addr:              a.cfg.Listen,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}}
	if a.cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:              a.cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		})
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, ln)
	}

	a.flusher.Start(ctx)
	a.log.Infof("agent %s proxying %s to %s (window %s, capacity %d)", a.tracing.AgentID(), listeners[0].Addr(), a.cfg.Upstream, a.cfg.Window, a.cfg.Capacity)

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		srv, ln := srv, listeners[i]
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Warnf("shutdown %s: %v", srv.Addr, err)
			}
		}
		return nil
	})
	return g.Wait()
}

// shutdown flushes the last window, closes sinks and returns the merged stats.
func (a *agent) shutdown() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.flusher.Stop(ctx); err != nil {
		a.log.Warnf("final flush: %v", err)
	}
	if err := a.sinks.Close(); err != nil {
		a.log.Warnf("closing sinks: %v", err)
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.log.Warnf("tracing shutdown: %v", err)
	}
	a.log.Infof("recorded %d samples, dropped %d, sent %d windows, %d failed",
		a.store.Recorded(), a.store.Dropped(), a.flusher.Sent(), a.flusher.Failed())
	return a.collector.Stats()
}
