package extractor

import (
	"fmt"
	"regexp"
	"strings"
)

// pathMatcher is a compiled pattern from a PatternProvider.
type pathMatcher struct {
	source   string
	regex    *regexp.Regexp
	template string // empty for '~' regex patterns
}

// compilePattern turns a template ("/users/{id}/files/**") or a '~' regex into a
// matcher. Template placeholders match one path segment, '*' matches within a
// segment and '**' matches across segments.
func compilePattern(pattern string) (*pathMatcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if strings.HasPrefix(pattern, "~") {
		regex, err := regexp.Compile(pattern[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern[1:], err)
		}
		return &pathMatcher{source: pattern, regex: regex}, nil
	}

	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); {
		switch {
		case pattern[i] == '{':
			end := strings.IndexByte(pattern[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder in %q", pattern)
			}
			sb.WriteString("[^/]+")
			i += end + 1
		case strings.HasPrefix(pattern[i:], "**"):
			sb.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			sb.WriteString("[^/]*")
			i++
		default:
			next := strings.IndexAny(pattern[i:], "{*")
			if next < 0 {
				next = len(pattern) - i
			}
			sb.WriteString(regexp.QuoteMeta(pattern[i : i+next]))
			i += next
		}
	}
	sb.WriteString("/?$")

	regex, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("invalid template %q: %w", pattern, err)
	}
	return &pathMatcher{source: pattern, regex: regex, template: pattern}, nil
}

// match returns the URI for path, or "" when the pattern does not apply.
// Regex patterns return their first capture group if present, otherwise the
// full match.
func (m *pathMatcher) match(path string) string {
	if m.template != "" {
		if m.regex.MatchString(path) {
			return m.template
		}
		return ""
	}

	match := m.regex.FindStringSubmatch(path)
	if match == nil {
		return ""
	}
	if len(match) > 1 {
		return match[1]
	}
	return match[0]
}
