package extractor

import "testing"

func TestCompilePatternTemplates(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    string
	}{
		{"/users/{id}", "/users/42", "/users/{id}"},
		{"/users/{id}", "/users/42/", "/users/{id}"},
		{"/users/{id}", "/users/42/orders", ""},
		{"/users/{id}/orders/{orderId}", "/users/1/orders/9", "/users/{id}/orders/{orderId}"},
		{"/static/**", "/static/css/site.css", "/static/**"},
		{"/files/*.txt", "/files/a.txt", "/files/*.txt"},
		{"/files/*.txt", "/files/dir/a.txt", ""},
		{"/v1.0/ping", "/v1x0/ping", ""},
	}

	for _, tt := range tests {
		m, err := compilePattern(tt.pattern)
		if err != nil {
			t.Fatalf("compilePattern(%q) error = %v", tt.pattern, err)
		}
		if got := m.match(tt.path); got != tt.want {
			t.Errorf("%q.match(%q) = %q, want %q", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestCompilePatternRegex(t *testing.T) {
	m, err := compilePattern(`~^(/api/v\d+/[a-z]+)`)
	if err != nil {
		t.Fatalf("compilePattern error = %v", err)
	}
	if got := m.match("/api/v2/users/123"); got != "/api/v2/users" {
		t.Errorf("expected capture group, got %q", got)
	}

	full, err := compilePattern(`~^/health`)
	if err != nil {
		t.Fatalf("compilePattern error = %v", err)
	}
	if got := full.match("/healthz"); got != "/health" {
		t.Errorf("expected full match, got %q", got)
	}
	if got := full.match("/ready"); got != "" {
		t.Errorf("expected no match, got %q", got)
	}
}

func TestCompilePatternErrors(t *testing.T) {
	for _, pattern := range []string{"", "  ", "~[invalid(regex", "/users/{id"} {
		if _, err := compilePattern(pattern); err == nil {
			t.Errorf("expected error for pattern %q", pattern)
		}
	}
}

func TestFindJSONField(t *testing.T) {
	body := []byte(`{"jsonrpc":"2.0","method":"user.get","params":{"id":7},"op":{"name":"Query"}}`)

	tests := []struct {
		path string
		want string
	}{
		{"method", "user.get"},
		{"$.method", "user.get"},
		{"op.name", "Query"},
		{"params", ""},
		{"missing", ""},
		{"$", ""},
	}
	for _, tt := range tests {
		if got := findJSONField(body, tt.path); got != tt.want {
			t.Errorf("findJSONField(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
