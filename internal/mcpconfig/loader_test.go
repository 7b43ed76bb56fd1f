package mcpconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmptyInlineConfig(t *testing.T) {
	t.Setenv("MCP_CONFIG", `{"mcpServers":{}}`)
	t.Setenv("MCP_CONFIG_PATH", "")

	l := &Loader{ProjectRoot: t.TempDir()}
	got, err := l.Load()
	require.NoError(t, err)
	assert.Empty(t, got.Servers)
	assert.Equal(t, []string{"env:MCP_CONFIG"}, got.Sources)
	assert.Empty(t, got.BlockedServers)
}

func TestLoad_InlineConfig_ParsesServer(t *testing.T) {
	t.Setenv("MCP_CONFIG", `{"mcpServers":{"demo":{"command":"node","args":["server.js"]}}}`)

	l := &Loader{ProjectRoot: t.TempDir()}
	got, err := l.Load()
	require.NoError(t, err)
	require.Contains(t, got.Servers, "demo")
	assert.Equal(t, "node", got.Servers["demo"].Command)
	assert.Equal(t, "env", got.ServerSources["demo"])
}

func TestLoad_ProjectWinsOverHome_ByDefault(t *testing.T) {
	t.Setenv("MCP_CONFIG", "")
	t.Setenv("MCP_CONFIG_PATH", "")
	t.Setenv("ICA_MCP_CONFIG_PREFER_HOME", "")

	home := t.TempDir()
	t.Setenv("ICA_HOME", home)
	writeJSON(t, filepath.Join(home, "mcp-servers.json"), map[string]any{
		"mcpServers": map[string]any{
			"shared": map[string]any{"command": "home-cmd"},
		},
	})

	project := t.TempDir()
	writeJSON(t, filepath.Join(project, ".mcp.json"), map[string]any{
		"mcpServers": map[string]any{
			"shared": map[string]any{"command": "project-cmd"},
		},
	})

	l := &Loader{ProjectRoot: project}
	got, err := l.Load()
	require.NoError(t, err)
	require.Contains(t, got.Servers, "shared")
	assert.Equal(t, "project-cmd", got.Servers["shared"].Command)
	assert.Equal(t, "project", got.ServerSources["shared"])
}

func TestLoad_PreferHomeFlipsPrecedence(t *testing.T) {
	t.Setenv("MCP_CONFIG", "")
	t.Setenv("MCP_CONFIG_PATH", "")
	t.Setenv("ICA_MCP_CONFIG_PREFER_HOME", "1")

	home := t.TempDir()
	t.Setenv("ICA_HOME", home)
	writeJSON(t, filepath.Join(home, "mcp-servers.json"), map[string]any{
		"mcpServers": map[string]any{
			"shared": map[string]any{"command": "home-cmd"},
		},
	})

	project := t.TempDir()
	writeJSON(t, filepath.Join(project, ".mcp.json"), map[string]any{
		"mcpServers": map[string]any{
			"shared": map[string]any{"command": "project-cmd"},
		},
	})

	l := &Loader{ProjectRoot: project}
	got, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "home-cmd", got.Servers["shared"].Command)
}

func TestLoad_StrictTrust_BlocksUntrustedProjectStdio(t *testing.T) {
	t.Setenv("MCP_CONFIG", "")
	t.Setenv("MCP_CONFIG_PATH", "")
	t.Setenv("ICA_MCP_STRICT_TRUST", "1")
	t.Setenv("ICA_MCP_ALLOW_PROJECT_STDIO", "")
	t.Setenv("ICA_HOME", t.TempDir())

	project := t.TempDir()
	writeJSON(t, filepath.Join(project, ".mcp.json"), map[string]any{
		"mcpServers": map[string]any{
			"x": map[string]any{"command": "node"},
		},
	})

	trustPath := filepath.Join(t.TempDir(), "mcp-trust.json")
	trust := OpenTrustStore(trustPath)

	l := &Loader{ProjectRoot: project, Trust: trust}
	got, err := l.Load()
	require.NoError(t, err)
	assert.NotContains(t, got.Servers, "x")
	assert.Contains(t, got.BlockedServers, "x")

	content, err := os.ReadFile(filepath.Join(project, ".mcp.json"))
	require.NoError(t, err)
	require.NoError(t, trust.TrustProject(project, content))

	got2, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, got2.Servers, "x")
	assert.NotContains(t, got2.BlockedServers, "x")
}

func TestLoad_ReservedNameDropped(t *testing.T) {
	t.Setenv("MCP_CONFIG", `{"mcpServers":{"proxy":{"command":"node"}}}`)
	l := &Loader{ProjectRoot: t.TempDir()}
	got, err := l.Load()
	require.NoError(t, err)
	assert.NotContains(t, got.Servers, "proxy")
	assert.NotContains(t, got.BlockedServers, "proxy")
}

func TestLoad_InvalidNameBlocked(t *testing.T) {
	t.Setenv("MCP_CONFIG", `{"mcpServers":{"bad name!":{"command":"node"}}}`)
	l := &Loader{ProjectRoot: t.TempDir()}
	got, err := l.Load()
	require.NoError(t, err)
	assert.NotContains(t, got.Servers, "bad name!")
	assert.Contains(t, got.BlockedServers, "bad name!")
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}
