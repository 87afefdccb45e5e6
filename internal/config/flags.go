package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "uristat-agent",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Proxy flags
	flags.String("listen", DefaultListen, "Address the instrumented proxy listens on")
	flags.String("upstream", "", "Upstream URL requests are forwarded to")
	flags.String("metrics-listen", "", "Address serving Prometheus /metrics (empty disables)")

	// Aggregation flags
	flags.Duration("window", DefaultWindow, "Reporting window length")
	flags.Int("capacity", DefaultCapacity, "Maximum distinct URIs per window")
	flags.Int("layout-version", 0, "Histogram bucket layout version")
	flags.Duration("send-timeout", DefaultSendTimeout, "Timeout for sending one window")

	// Extraction flags
	flags.Bool("raw-path-fallback", false, "Use the raw request path when no extractor matches")
	flags.Bool("method-prefix", false, "Prefix resolved URIs with the HTTP method")
	flags.StringSlice("path-pattern", nil, "URI template for request_path extraction (repeatable)")
	flags.StringSlice("attribute", nil, "Request attribute or header for request_attribute extraction (repeatable)")
	flags.StringSlice("body-field", nil, "JSON field for request_body extraction (repeatable)")
	flags.Int("cache-size", DefaultCacheSize, "Number of resolved paths kept in the lookup cache")

	// Sink flags
	flags.String("http-sink", "", "Collector URL receiving JSON windows over HTTP")
	flags.String("grpc-sink", "", "Collector gRPC target")
	flags.Bool("grpc-insecure", false, "Disable TLS for the gRPC sink")
	flags.String("websocket-sink", "", "Collector WebSocket URL")
	flags.String("file-sink", "", "File receiving one JSON line per window")

	// Output flags
	flags.String("log-level", DefaultLogLevel, "Log level: debug, info, warn or error")
	flags.String("log-format", DefaultLogFormat, "Log format: json or console")
	flags.Bool("json-report", false, "Print the shutdown report as JSON")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for flush spans")
	flags.String("tracing-protocol", "", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	stringFlags := []struct {
		name string
		dst  *string
	}{
		{"listen", &cfg.Listen},
		{"upstream", &cfg.Upstream},
		{"metrics-listen", &cfg.MetricsListen},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"http-sink", &cfg.Sinks.HTTPURL},
		{"grpc-sink", &cfg.Sinks.GRPCTarget},
		{"websocket-sink", &cfg.Sinks.WebSocketURL},
		{"file-sink", &cfg.Sinks.File},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
	}
	for _, f := range stringFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	boolFlags := []struct {
		name string
		dst  *bool
	}{
		{"raw-path-fallback", &cfg.RawPathFallback},
		{"method-prefix", &cfg.MethodPrefix},
		{"grpc-insecure", &cfg.Sinks.GRPCInsecure},
		{"json-report", &cfg.JSONReport},
		{"tracing-insecure", &cfg.Tracing.Insecure},
	}
	for _, f := range boolFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetBool(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	intFlags := []struct {
		name string
		dst  *int
	}{
		{"capacity", &cfg.Capacity},
		{"layout-version", &cfg.LayoutVersion},
		{"cache-size", &cfg.CacheSize},
	}
	for _, f := range intFlags {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	if fs.Changed("window") {
		val, err := fs.GetDuration("window")
		if err != nil {
			return err
		}
		cfg.Window = val
	}
	if fs.Changed("send-timeout") {
		val, err := fs.GetDuration("send-timeout")
		if err != nil {
			return err
		}
		cfg.SendTimeout = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	// Extractors given on the command line are appended to those from the file.
	extractorFlags := []struct {
		name string
		typ  string
		set  func(*ExtractorConfig, []string)
	}{
		{"attribute", "request_attribute", func(e *ExtractorConfig, v []string) { e.Parameters = v }},
		{"body-field", "request_body", func(e *ExtractorConfig, v []string) { e.Fields = v }},
		{"path-pattern", "request_path", func(e *ExtractorConfig, v []string) { e.Patterns = v }},
	}
	for _, f := range extractorFlags {
		if !fs.Changed(f.name) {
			continue
		}
		vals, err := fs.GetStringSlice(f.name)
		if err != nil {
			return err
		}
		vals = trimAll(vals)
		if len(vals) == 0 {
			continue
		}
		ex := ExtractorConfig{Type: f.typ}
		f.set(&ex, vals)
		cfg.Extractors = append(cfg.Extractors, ex)
	}
	return nil
}
