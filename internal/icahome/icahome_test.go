package icahome

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_EnvVarWins(t *testing.T) {
	t.Setenv("ICA_HOME", "/custom/home")
	assert.Equal(t, "/custom/home", Resolve(""))
}

func TestResolve_InferFromLayout(t *testing.T) {
	t.Setenv("ICA_HOME", "")
	root := t.TempDir()
	scriptDir := filepath.Join(root, "skills", "mcp-proxy", "scripts")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "VERSION"), []byte("1.0.0\n"), 0o644))

	scriptFile := filepath.Join(scriptDir, "mcp_proxy_server.py")
	assert.Equal(t, root, Resolve(scriptFile))
}

func TestResolve_InferFromLayout_NoVersionMarker(t *testing.T) {
	t.Setenv("ICA_HOME", "")
	root := t.TempDir()
	scriptDir := filepath.Join(root, "skills", "mcp-proxy", "scripts")
	require.NoError(t, os.MkdirAll(scriptDir, 0o755))

	scriptFile := filepath.Join(scriptDir, "mcp_proxy_server.py")
	assert.Equal(t, "", Resolve(scriptFile))
}

func TestRequireForWrite_MissingHome(t *testing.T) {
	t.Setenv("ICA_HOME", "")
	_, err := RequireForWrite("")
	require.Error(t, err)
}
