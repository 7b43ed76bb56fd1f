package mcpconfig

import (
	"os"
	"strings"
)

// expandPlaceholders walks a raw JSON value, substituting ${VAR} references
// against the process environment. Strings with no placeholder are returned
// unchanged; an unresolved ${VAR} is left literal rather than collapsed to
// empty, so a missing variable is visible in the resulting config/logs
// instead of silently producing an empty command or URL.
func expandPlaceholders(v any) any {
	switch t := v.(type) {
	case string:
		return expandString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = expandPlaceholders(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = expandPlaceholders(val)
		}
		return out
	default:
		return v
	}
}

func expandString(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += start
		b.WriteString(s[:start])
		name := s[start+2 : end]
		if val, ok := os.LookupEnv(name); ok {
			b.WriteString(val)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	return b.String()
}
