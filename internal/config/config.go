package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/uristat/internal/extractor"
	"github.com/torosent/uristat/internal/histogram"
)

const (
	DefaultListen       = ":8080"
	DefaultWindow       = 30 * time.Second
	DefaultCapacity     = 1000
	DefaultSendTimeout  = 5 * time.Second
	DefaultCacheSize    = 4096
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "json"
	DefaultMaxBodyBytes = 64 << 10
)

type Config struct {
	Listen          string            `mapstructure:"listen" yaml:"listen"`
	Upstream        string            `mapstructure:"upstream" yaml:"upstream"`
	MetricsListen   string            `mapstructure:"metrics_listen" yaml:"metrics_listen,omitempty"`
	Window          time.Duration     `mapstructure:"window" yaml:"window"`
	Capacity        int               `mapstructure:"capacity" yaml:"capacity"`
	LayoutVersion   int               `mapstructure:"layout_version" yaml:"layout_version"`
	SendTimeout     time.Duration     `mapstructure:"send_timeout" yaml:"send_timeout"`
	RawPathFallback bool              `mapstructure:"raw_path_fallback" yaml:"raw_path_fallback"`
	MethodPrefix    bool              `mapstructure:"method_prefix" yaml:"method_prefix"`
	CacheSize       int               `mapstructure:"cache_size" yaml:"cache_size"`
	MaxBodyBytes    int64             `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	LogLevel        string            `mapstructure:"log_level" yaml:"log_level"`
	LogFormat       string            `mapstructure:"log_format" yaml:"log_format"`
	JSONReport      bool              `mapstructure:"json_report" yaml:"json_report"`
	Extractors      []ExtractorConfig `mapstructure:"extractors" yaml:"extractors,omitempty"`
	Sinks           SinksConfig       `mapstructure:"sinks" yaml:"sinks"`
	Tracing         TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
	ConfigFile      string            `mapstructure:"-" yaml:"-"`
}

// ExtractorConfig declares one extractor provider. Only the list matching
// Type is used.
type ExtractorConfig struct {
	Type       string   `mapstructure:"type" yaml:"type"`
	Parameters []string `mapstructure:"parameters" yaml:"parameters,omitempty"`
	Patterns   []string `mapstructure:"patterns" yaml:"patterns,omitempty"`
	Fields     []string `mapstructure:"fields" yaml:"fields,omitempty"`
}

type SinksConfig struct {
	HTTPURL      string `mapstructure:"http_url" yaml:"http_url,omitempty"`
	GRPCTarget   string `mapstructure:"grpc_target" yaml:"grpc_target,omitempty"`
	GRPCInsecure bool   `mapstructure:"grpc_insecure" yaml:"grpc_insecure,omitempty"`
	WebSocketURL string `mapstructure:"websocket_url" yaml:"websocket_url,omitempty"`
	File         string `mapstructure:"file" yaml:"file,omitempty"`
}

// Empty reports whether no sink is configured.
func (s SinksConfig) Empty() bool {
	return s.HTTPURL == "" && s.GRPCTarget == "" && s.WebSocketURL == "" && s.File == ""
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" yaml:"protocol,omitempty"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure,omitempty"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Propagate   *bool   `mapstructure:"propagate" yaml:"propagate,omitempty"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate defaults to true when tracing is enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Listen:       DefaultListen,
		Window:       DefaultWindow,
		Capacity:     DefaultCapacity,
		SendTimeout:  DefaultSendTimeout,
		CacheSize:    DefaultCacheSize,
		MaxBodyBytes: DefaultMaxBodyBytes,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		Tracing:      TracingConfig{SampleRate: 1.0},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Listen) == "" {
		issues = append(issues, "listen address is required")
	}
	if strings.TrimSpace(c.Upstream) == "" {
		issues = append(issues, "upstream is required (use --help for usage information)")
	} else if err := validateURL(c.Upstream, "http", "https"); err != nil {
		issues = append(issues, fmt.Sprintf("upstream: %v", err))
	}
	if c.Window <= 0 {
		issues = append(issues, "window must be > 0")
	}
	if c.Capacity < 1 {
		issues = append(issues, "capacity must be >= 1")
	}
	if c.SendTimeout < 0 {
		issues = append(issues, "send_timeout must be >= 0")
	}
	if c.CacheSize < 0 {
		issues = append(issues, "cache_size must be >= 0")
	}
	if c.MaxBodyBytes < 0 {
		issues = append(issues, "max_body_bytes must be >= 0")
	}
	if c.LayoutVersion < 0 || c.LayoutVersion > 255 {
		issues = append(issues, fmt.Sprintf("layout_version %d out of range 0-255", c.LayoutVersion))
	} else if _, ok := histogram.LayoutByVersion(byte(c.LayoutVersion)); !ok {
		issues = append(issues, fmt.Sprintf("layout_version %d is not registered", c.LayoutVersion))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level %q must be debug, info, warn or error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		issues = append(issues, fmt.Sprintf("log_format %q must be json or console", c.LogFormat))
	}

	issues = append(issues, validateExtractors(c.Extractors)...)
	issues = append(issues, validateSinks(c.Sinks)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return fmt.Errorf("scheme %q must be one of %s", u.Scheme, strings.Join(schemes, ", "))
}

func validateExtractors(extractors []ExtractorConfig) []string {
	var issues []string
	for i, ex := range extractors {
		typ, err := extractor.ParseType(ex.Type)
		if err != nil {
			issues = append(issues, fmt.Sprintf("extractors[%d]: %v", i, err))
			continue
		}
		switch typ {
		case extractor.TypeRequestAttribute:
			if len(ex.Parameters) == 0 {
				issues = append(issues, fmt.Sprintf("extractors[%d]: request_attribute requires parameters", i))
			}
		case extractor.TypeRequestPath:
			if len(ex.Patterns) == 0 {
				issues = append(issues, fmt.Sprintf("extractors[%d]: request_path requires patterns", i))
			}
		case extractor.TypeRequestBody:
			if len(ex.Fields) == 0 {
				issues = append(issues, fmt.Sprintf("extractors[%d]: request_body requires fields", i))
			}
		}
	}
	return issues
}

func validateSinks(s SinksConfig) []string {
	var issues []string
	if s.HTTPURL != "" {
		if err := validateURL(s.HTTPURL, "http", "https"); err != nil {
			issues = append(issues, fmt.Sprintf("sinks.http_url: %v", err))
		}
	}
	if s.WebSocketURL != "" {
		if err := validateURL(s.WebSocketURL, "ws", "wss"); err != nil {
			issues = append(issues, fmt.Sprintf("sinks.websocket_url: %v", err))
		}
	}
	if s.GRPCTarget != "" && strings.ContainsAny(s.GRPCTarget, " \t") {
		issues = append(issues, "sinks.grpc_target must not contain whitespace")
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing.sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing.protocol %q must be grpc or http", t.Protocol))
	}
	return issues
}

// Layout returns the bucket layout selected by LayoutVersion.
func (c Config) Layout() (*histogram.Layout, error) {
	if c.LayoutVersion < 0 || c.LayoutVersion > 255 {
		return nil, fmt.Errorf("layout_version %d out of range", c.LayoutVersion)
	}
	layout, ok := histogram.LayoutByVersion(byte(c.LayoutVersion))
	if !ok {
		return nil, fmt.Errorf("layout_version %d is not registered", c.LayoutVersion)
	}
	return layout, nil
}

// Registry builds the extractor registry from the configured providers.
func (c Config) Registry() (*extractor.Registry, error) {
	providers := make([]extractor.Provider, 0, len(c.Extractors))
	for i, ex := range c.Extractors {
		typ, err := extractor.ParseType(ex.Type)
		if err != nil {
			return nil, fmt.Errorf("extractors[%d]: %w", i, err)
		}
		switch typ {
		case extractor.TypeRequestAttribute:
			providers = append(providers, extractor.NewMapping(typ, ex.Parameters...))
		case extractor.TypeRequestPath:
			providers = append(providers, extractor.NewPatterns(typ, ex.Patterns...))
		case extractor.TypeRequestBody:
			providers = append(providers, extractor.NewFields(typ, ex.Fields...))
		}
	}
	return extractor.NewRegistry(providers...)
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
