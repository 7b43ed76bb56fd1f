package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RecordAndServe(t *testing.T) {
	r := New()
	r.RecordToolCall("demo", "echo", "ok", 10*time.Millisecond)
	r.RecordUpstreamError("demo", "timeout")
	r.RecordOAuthFlow("demo", "pkce", "ok")
	r.SetCatalogueStats(3, 42, true)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ica_mcp_proxy_tool_calls_total")
	assert.Contains(t, body, "ica_mcp_proxy_mirror_truncated 1")
}
