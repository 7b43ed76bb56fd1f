package oauthflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
)

func TestBuildHeaders_ExplicitHeaderWins(t *testing.T) {
	def := &mcpconfig.ServerDefinition{
		Headers: map[string]string{"Authorization": "Bearer explicit"},
		APIKey:  "key",
	}
	got := BuildHeaders(def, "oauth-token")
	assert.Equal(t, "Bearer explicit", got["Authorization"])
}

func TestBuildHeaders_APIKeyBeatsOAuth(t *testing.T) {
	def := &mcpconfig.ServerDefinition{APIKey: "key"}
	got := BuildHeaders(def, "oauth-token")
	assert.Equal(t, "Bearer key", got["Authorization"])
}

func TestBuildHeaders_FallsBackToOAuth(t *testing.T) {
	def := &mcpconfig.ServerDefinition{}
	got := BuildHeaders(def, "oauth-token")
	assert.Equal(t, "Bearer oauth-token", got["Authorization"])
}

func TestBuildHeaders_NoneConfigured(t *testing.T) {
	def := &mcpconfig.ServerDefinition{}
	got := BuildHeaders(def, "")
	_, ok := got["Authorization"]
	assert.False(t, ok)
}
