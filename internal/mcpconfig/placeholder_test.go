package mcpconfig

import "testing"

func TestExpandString_Substitutes(t *testing.T) {
	t.Setenv("ICA_TEST_TOKEN", "secret123")
	got := expandString("Bearer ${ICA_TEST_TOKEN}")
	if got != "Bearer secret123" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandString_LeavesUnresolvedLiteral(t *testing.T) {
	got := expandString("${ICA_TEST_DOES_NOT_EXIST_XYZ}")
	if got != "${ICA_TEST_DOES_NOT_EXIST_XYZ}" {
		t.Fatalf("expected literal passthrough, got %q", got)
	}
}

func TestExpandPlaceholders_Recursive(t *testing.T) {
	t.Setenv("ICA_TEST_HOST", "example.com")
	in := map[string]any{
		"url": "https://${ICA_TEST_HOST}/mcp",
		"headers": map[string]any{
			"X-Host": "${ICA_TEST_HOST}",
		},
		"args": []any{"--host", "${ICA_TEST_HOST}"},
	}
	out := expandPlaceholders(in).(map[string]any)
	if out["url"] != "https://example.com/mcp" {
		t.Fatalf("url not expanded: %v", out["url"])
	}
	headers := out["headers"].(map[string]any)
	if headers["X-Host"] != "example.com" {
		t.Fatalf("nested header not expanded: %v", headers["X-Host"])
	}
	args := out["args"].([]any)
	if args[1] != "example.com" {
		t.Fatalf("list element not expanded: %v", args[1])
	}
}
