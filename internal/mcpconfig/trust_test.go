package mcpconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrustStore_TrustAndStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-trust.json")
	store := OpenTrustStore(path)

	content := []byte(`{"mcpServers":{"x":{"command":"node"}}}`)
	status, err := store.Status("/proj", content)
	require.NoError(t, err)
	assert.False(t, status.Trusted)

	require.NoError(t, store.TrustProject("/proj", content))

	status, err = store.Status("/proj", content)
	require.NoError(t, err)
	assert.True(t, status.Trusted)

	status, err = store.Status("/proj", []byte(`{"mcpServers":{"x":{"command":"python"}}}`))
	require.NoError(t, err)
	assert.False(t, status.Trusted)
	assert.False(t, status.ContentHit)
}

func TestTrustStore_Untrust(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-trust.json")
	store := OpenTrustStore(path)
	content := []byte(`{}`)

	require.NoError(t, store.TrustProject("/proj", content))
	require.NoError(t, store.UntrustProject("/proj"))

	status, err := store.Status("/proj", content)
	require.NoError(t, err)
	assert.False(t, status.Trusted)
}

func TestTrustStore_CorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-trust.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	store := OpenTrustStore(path)
	status, err := store.Status("/proj", []byte("{}"))
	require.NoError(t, err)
	assert.False(t, status.Trusted)
}
