// Package config loads, validates and renders the agent configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// settingKey folds the spellings accepted in config files ("log_level",
// "logLevel", "log-level") onto one key.
func settingKey(key string) string {
	return strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(key)))
}

// lookupSetting returns the first value whose key matches one of candidates.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, candidate := range candidates {
		want := settingKey(candidate)
		for key, val := range settings {
			if settingKey(key) == want {
				return val, true
			}
		}
	}
	return nil, false
}

func isBlank(value interface{}) bool {
	s, ok := value.(string)
	return value == nil || (ok && strings.TrimSpace(s) == "")
}

func asString(value interface{}) (string, error) {
	return cast.ToStringE(value)
}

func asInt(value interface{}) (int, error) {
	if isBlank(value) {
		return 0, nil
	}
	if _, ok := value.(bool); ok {
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	return cast.ToIntE(value)
}

func asFloat64(value interface{}) (float64, error) {
	if isBlank(value) {
		return 0, nil
	}
	if _, ok := value.(bool); ok {
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	if isBlank(value) {
		return false, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	return cast.ToBoolE(value)
}

// asDuration parses "30s"-style strings. Bare numbers are seconds, so
// `window: 30` means thirty seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case bool:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, fmt.Errorf("unsupported duration type %T", value)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}

// asStringSlice accepts a list or a single string, so `patterns: /health`
// and `patterns: [/health]` are equivalent.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			str, err := cast.ToStringE(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = str
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported string list type %T", value)
	}
}

// toInterfaceSlice reads a list of sections such as `extractors`.
func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	if value == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(value)
	if err != nil {
		return nil, fmt.Errorf("expected list, got %T", value)
	}
	return items, nil
}

// toStringKeyMap reads a section such as `sinks` or `tracing`, or one
// entry of `extractors`.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	m, err := cast.ToStringMapE(value)
	if err != nil {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return m, nil
}
