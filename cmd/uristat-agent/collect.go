package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/torosent/uristat/internal/logging"
	"github.com/torosent/uristat/internal/metrics"
	"github.com/torosent/uristat/internal/output"
	"github.com/torosent/uristat/internal/transport"
	"github.com/torosent/uristat/internal/uristat"
)

type collectOptions struct {
	httpListen string
	grpcListen string
	progress   time.Duration
	jsonReport bool
	logLevel   string
	logFormat  string
}

func newCollectCommand() *cobra.Command {
	opts := collectOptions{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Receive windows from agents and print merged statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.httpListen == "" && opts.grpcListen == "" {
				return errors.New("at least one of --http-listen or --grpc-listen is required")
			}
			return runCollect(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.httpListen, "http-listen", ":9090", "Address accepting windows on POST /windows and /ws (empty disables)")
	flags.StringVar(&opts.grpcListen, "grpc-listen", "", "Address serving the gRPC collector (empty disables)")
	flags.DurationVar(&opts.progress, "progress", 0, "Print a summary line at this interval (0 disables)")
	flags.BoolVar(&opts.jsonReport, "json-report", false, "Print the shutdown report as JSON")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "json", "Log format: json or console")
	return cmd
}

func runCollect(ctx context.Context, opts collectOptions, stdout io.Writer) error {
	zl, err := logging.New(opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	collector := metrics.NewCollector()
	if opts.progress > 0 {
		progress := output.NewProgressReporter(collector, opts.progress, stdout)
		progress.Start()
		defer progress.Stop()
	}

	if err := serveCollector(ctx, opts, collector, log); err != nil {
		return err
	}

	stats := collector.Stats()
	if opts.jsonReport {
		return output.PrintJSONReport(stdout, stats)
	}
	output.PrintReport(stdout, stats)
	return nil
}

func serveCollector(ctx context.Context, opts collectOptions, collector *metrics.Collector, log *zap.SugaredLogger) error {
	var httpLn, grpcLn net.Listener
	var err error
	if opts.httpListen != "" {
		if httpLn, err = net.Listen("tcp", opts.httpListen); err != nil {
			return fmt.Errorf("listen %s: %w", opts.httpListen, err)
		}
	}
	if opts.grpcListen != "" {
		if grpcLn, err = net.Listen("tcp", opts.grpcListen); err != nil {
			if httpLn != nil {
				_ = httpLn.Close()
			}
			return fmt.Errorf("listen %s: %w", opts.grpcListen, err)
		}
	}

	recv := loggingReceiver(collector, log)

	g, gctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		mux := http.NewServeMux()
		mux.Handle("/windows", transport.HTTPReceiver(recv))
		mux.Handle("/ws", transport.WebSocketReceiver(recv, log))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
		log.Infof("collecting windows over HTTP on %s", httpLn.Addr())

		g.Go(func() error {
			if err := srv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if grpcLn != nil {
		srv := grpc.NewServer()
		transport.RegisterCollectorServer(srv, recv)
		log.Infof("collecting windows over gRPC on %s", grpcLn.Addr())

		g.Go(func() error {
			return srv.Serve(grpcLn)
		})
		g.Go(func() error {
			<-gctx.Done()
			srv.GracefulStop()
			return nil
		})
	}
	return g.Wait()
}

// loggingReceiver merges windows into collector and logs each outcome.
func loggingReceiver(collector *metrics.Collector, log *zap.SugaredLogger) transport.Receiver {
	return transport.ReceiverFunc(func(ctx context.Context, snap uristat.Snapshot) error {
		if err := collector.Receive(ctx, snap); err != nil {
			log.Warnf("window %s rejected: %v", snap.ID, err)
			return err
		}
		log.Debugf("merged window %s (%d uris, %d dropped)", snap.ID, len(snap.URIs), snap.Dropped)
		return nil
	})
}
