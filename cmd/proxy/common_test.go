package main

import "testing"

func TestLooksLikeJSON(t *testing.T) {
	cases := map[string]bool{
		`{"servers": {}}`: true,
		`  [1,2,3]`:        true,
		"/home/me/.mcp.json": false,
		"":                   false,
	}
	for input, want := range cases {
		if got := looksLikeJSON(input); got != want {
			t.Errorf("looksLikeJSON(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestEnvTruthy(t *testing.T) {
	t.Setenv("ICA_MCP_PROXY_TEST_FLAG", "1")
	if !envTruthy("ICA_MCP_PROXY_TEST_FLAG") {
		t.Error("expected \"1\" to be truthy")
	}

	t.Setenv("ICA_MCP_PROXY_TEST_FLAG", "no")
	if envTruthy("ICA_MCP_PROXY_TEST_FLAG") {
		t.Error("expected \"no\" to be falsy")
	}
}
