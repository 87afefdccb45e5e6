package extractor

import (
	"github.com/tidwall/gjson"
)

// findJSONField extracts a string value from JSON using gjson with support for
// $.field and field syntax. Non-scalar results are ignored.
func findJSONField(body []byte, path string) string {
	if len(path) > 0 && path[0] == '$' {
		if len(path) > 1 && path[1] == '.' {
			path = path[2:]
		} else if len(path) == 1 {
			return ""
		}
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() || result.IsObject() || result.IsArray() {
		return ""
	}
	return result.String()
}
