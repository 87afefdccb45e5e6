package tracing

import (
	"context"
	"testing"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/torosent/uristat/internal/config"
)

func TestNewResourceCarriesAgentAndLayout(t *testing.T) {
	res, err := newResource(context.Background(), "edge", options{layoutVersion: 2, agentID: "host-a"})
	if err != nil {
		t.Fatalf("newResource() error = %v", err)
	}

	set := res.Set()
	if v, ok := set.Value(semconv.ServiceNameKey); !ok || v.AsString() != "edge" {
		t.Errorf("service.name = %v, %v", v.AsString(), ok)
	}
	if v, ok := set.Value(semconv.ServiceInstanceIDKey); !ok || v.AsString() != "host-a" {
		t.Errorf("service.instance.id = %v, %v", v.AsString(), ok)
	}
	if v, ok := set.Value(LayoutVersionKey); !ok || v.AsInt64() != 2 {
		t.Errorf("uristat.layout.version = %v, %v", v.AsInt64(), ok)
	}
}

func TestNewResourceOmitsUnknownLayout(t *testing.T) {
	res, err := newResource(context.Background(), "edge", options{layoutVersion: -1, agentID: "host-a"})
	if err != nil {
		t.Fatalf("newResource() error = %v", err)
	}
	if _, ok := res.Set().Value(LayoutVersionKey); ok {
		t.Error("layout version recorded without WithLayoutVersion")
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate    float64
		want    string
		wantErr bool
	}{
		{rate: 0, want: "AlwaysOffSampler"},
		{rate: 1, want: "AlwaysOnSampler"},
		{rate: 0.25, want: "TraceIDRatioBased{0.25}"},
		{rate: -0.1, wantErr: true},
		{rate: 1.01, wantErr: true},
	}
	for _, tt := range tests {
		sampler, err := newSampler(tt.rate)
		if tt.wantErr {
			if err == nil {
				t.Errorf("newSampler(%g) should fail", tt.rate)
			}
			continue
		}
		if err != nil {
			t.Fatalf("newSampler(%g) error = %v", tt.rate, err)
		}
		if got := sampler.Description(); got != tt.want {
			t.Errorf("newSampler(%g) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestServiceNameFallbacks(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	if got := serviceName(config.TracingConfig{}); got != defaultServiceName {
		t.Errorf("serviceName() = %q, want %q", got, defaultServiceName)
	}
	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	if got := serviceName(config.TracingConfig{}); got != "from-env" {
		t.Errorf("serviceName() = %q, want from-env", got)
	}
	if got := serviceName(config.TracingConfig{ServiceName: "explicit"}); got != "explicit" {
		t.Errorf("serviceName() = %q, want explicit", got)
	}
}

func TestInitOptionsSetAgentID(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := Init(context.Background(), config.TracingConfig{}, WithAgentID(" host-b "), WithLayoutVersion(1))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if p.AgentID() != "host-b" {
		t.Errorf("AgentID() = %q, want host-b", p.AgentID())
	}

	p, err = Init(context.Background(), config.TracingConfig{}, WithAgentID(""))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if len(p.AgentID()) != 26 {
		t.Errorf("AgentID() = %q, want a generated ULID", p.AgentID())
	}
}

