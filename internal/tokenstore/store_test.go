package tokenstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-tokens.json")
	store := Open(path)

	_, ok := store.Get("demo")
	assert.False(t, ok)

	entry := TokenEntry{AccessToken: "tok1", ObtainedAt: time.Now()}
	require.NoError(t, store.Put("demo", entry))

	got, ok := store.Get("demo")
	require.True(t, ok)
	assert.Equal(t, "tok1", got.AccessToken)

	require.NoError(t, store.Delete("demo"))
	_, ok = store.Get("demo")
	assert.False(t, ok)
}

func TestStore_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-tokens.json")
	store := Open(path)
	require.NoError(t, store.Put("demo", TokenEntry{AccessToken: "tok1"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_CorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp-tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := Open(path)
	_, ok := store.Get("demo")
	assert.False(t, ok)
}

func TestTokenEntry_Expired(t *testing.T) {
	now := time.Now()
	noExpiry := TokenEntry{}
	assert.False(t, noExpiry.Expired(now))

	expiring := TokenEntry{ExpiresAt: now.Add(10 * time.Second)}
	assert.True(t, expiring.Expired(now))

	fresh := TokenEntry{ExpiresAt: now.Add(5 * time.Minute)}
	assert.False(t, fresh.Expired(now))
}
