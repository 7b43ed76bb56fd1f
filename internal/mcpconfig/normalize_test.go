package mcpconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitions_StdioAndRemote(t *testing.T) {
	blocked := map[string]string{}
	raw := map[string]any{
		"stdio-server": map[string]any{
			"command": "node",
			"args":    []any{"server.js"},
			"env":     map[string]any{"FOO": "bar"},
		},
		"remote-server": map[string]any{
			"url":  "https://example.com/mcp",
			"type": "sse",
		},
		"not-an-object": "oops",
		"no-transport":  map[string]any{"name": "nope"},
	}
	out := parseDefinitions(raw, blocked)
	require.Contains(t, out, "stdio-server")
	require.Contains(t, out, "remote-server")
	assert.NotContains(t, out, "not-an-object")
	assert.NotContains(t, out, "no-transport")
	assert.True(t, out["stdio-server"].IsStdio())
	assert.True(t, out["remote-server"].IsRemote())
	assert.Equal(t, "bar", out["stdio-server"].Env["FOO"])
}

func TestParseDefinition_TimeoutFromSecondsOrDuration(t *testing.T) {
	def, err := parseDefinition("s1", map[string]any{"command": "node", "timeout": float64(30)})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, def.Timeout)

	def2, err := parseDefinition("s2", map[string]any{"command": "node", "timeout": "45s"})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, def2.Timeout)
}

func TestParseOAuthConfig_DefaultsToPKCE(t *testing.T) {
	def, err := parseDefinition("s1", map[string]any{
		"url":   "https://example.com/mcp",
		"oauth": map[string]any{"client_id": "abc", "scopes": "read write"},
	})
	require.NoError(t, err)
	require.NotNil(t, def.OAuth)
	assert.Equal(t, FlowPKCE, def.OAuth.Type)
	assert.Equal(t, []string{"read", "write"}, def.OAuth.Scopes)
	assert.Equal(t, "read write", def.OAuth.ScopeString())
}

func TestParseOAuthConfig_RejectsUnknownType(t *testing.T) {
	_, err := parseDefinition("s1", map[string]any{
		"url":   "https://example.com/mcp",
		"oauth": map[string]any{"type": "bogus"},
	})
	require.Error(t, err)
}

func TestRawDocument_AcceptsBareMap(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"command": "x"}}
	out := rawDocument(doc)
	assert.Equal(t, doc, out)
}

func TestRawDocument_UnwrapsMCPServersKey(t *testing.T) {
	inner := map[string]any{"a": map[string]any{"command": "x"}}
	doc := map[string]any{"mcpServers": inner}
	out := rawDocument(doc)
	assert.Equal(t, inner, out)
}
