package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.FromFlags(flagSet)
}

// FromFlags builds a Config from an already parsed flag set registered with
// RegisterFlags. The file named by --config is read first and flags override it.
func (Loader) FromFlags(flagSet *pflag.FlagSet) (*Config, error) {
	var configPath string
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Listen = strings.TrimSpace(cfg.Listen)
	cfg.Upstream = strings.TrimSpace(cfg.Upstream)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	stringFields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"listen"}, &cfg.Listen},
		{[]string{"upstream", "target"}, &cfg.Upstream},
		{[]string{"metrics_listen", "metricslisten", "metrics-listen"}, &cfg.MetricsListen},
		{[]string{"log_level", "loglevel", "log-level"}, &cfg.LogLevel},
		{[]string{"log_format", "logformat", "log-format"}, &cfg.LogFormat},
	}
	for _, field := range stringFields {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "window", "interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("window: %w", err)
		}
		cfg.Window = dur
	}
	if raw, ok := lookupSetting(settings, "send_timeout", "sendtimeout", "send-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("send_timeout: %w", err)
		}
		cfg.SendTimeout = dur
	}
	if raw, ok := lookupSetting(settings, "capacity"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("capacity: %w", err)
		}
		cfg.Capacity = val
	}
	if raw, ok := lookupSetting(settings, "layout_version", "layoutversion", "layout-version"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("layout_version: %w", err)
		}
		cfg.LayoutVersion = val
	}
	if raw, ok := lookupSetting(settings, "cache_size", "cachesize", "cache-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("cache_size: %w", err)
		}
		cfg.CacheSize = val
	}
	if raw, ok := lookupSetting(settings, "max_body_bytes", "maxbodybytes", "max-body-bytes"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_body_bytes: %w", err)
		}
		cfg.MaxBodyBytes = int64(val)
	}

	boolFields := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"raw_path_fallback", "rawpathfallback", "raw-path-fallback"}, &cfg.RawPathFallback},
		{[]string{"method_prefix", "methodprefix", "method-prefix"}, &cfg.MethodPrefix},
		{[]string{"json_report", "jsonreport", "json-report"}, &cfg.JSONReport},
	}
	for _, field := range boolFields {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "extractors"); ok {
		extractors, err := parseExtractors(raw)
		if err != nil {
			return fmt.Errorf("extractors: %w", err)
		}
		cfg.Extractors = extractors
	}
	if raw, ok := lookupSetting(settings, "sinks"); ok {
		sinks, err := parseSinks(raw)
		if err != nil {
			return fmt.Errorf("sinks: %w", err)
		}
		cfg.Sinks = sinks
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}
	return nil
}

func parseExtractors(value interface{}) ([]ExtractorConfig, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	extractors := make([]ExtractorConfig, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		ex, err := buildExtractor(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		extractors = append(extractors, ex)
	}
	return extractors, nil
}

func buildExtractor(settings map[string]interface{}) (ExtractorConfig, error) {
	var ex ExtractorConfig
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return ExtractorConfig{}, fmt.Errorf("type: %w", err)
		}
		ex.Type = strings.TrimSpace(val)
	}
	lists := []struct {
		keys []string
		dst  *[]string
	}{
		{[]string{"parameters", "params", "attributes"}, &ex.Parameters},
		{[]string{"patterns", "paths"}, &ex.Patterns},
		{[]string{"fields", "jsonpath"}, &ex.Fields},
	}
	for _, list := range lists {
		if raw, ok := lookupSetting(settings, list.keys...); ok {
			vals, err := asStringSlice(raw)
			if err != nil {
				return ExtractorConfig{}, fmt.Errorf("%s: %w", list.keys[0], err)
			}
			*list.dst = trimAll(vals)
		}
	}
	return ex, nil
}

func parseSinks(value interface{}) (SinksConfig, error) {
	if value == nil {
		return SinksConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return SinksConfig{}, err
	}
	var sinks SinksConfig
	stringFields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"http_url", "httpurl", "http"}, &sinks.HTTPURL},
		{[]string{"grpc_target", "grpctarget", "grpc"}, &sinks.GRPCTarget},
		{[]string{"websocket_url", "websocketurl", "websocket"}, &sinks.WebSocketURL},
		{[]string{"file"}, &sinks.File},
	}
	for _, field := range stringFields {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return SinksConfig{}, fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "grpc_insecure", "grpcinsecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return SinksConfig{}, fmt.Errorf("grpc_insecure: %w", err)
		}
		sinks.GRPCInsecure = val
	}
	return sinks, nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	if value == nil {
		return base, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	tc := base
	stringFields := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"endpoint"}, &tc.Endpoint},
		{[]string{"protocol"}, &tc.Protocol},
		{[]string{"service_name", "servicename", "service-name"}, &tc.ServiceName},
	}
	for _, field := range stringFields {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return TracingConfig{}, fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
