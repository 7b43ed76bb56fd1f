package oauthflow

import "github.com/ica-mcp/proxy/internal/mcpconfig"

// BuildHeaders computes the headers a remote upstream request carries, in
// precedence order: explicit config.headers always win, then api_key (sent
// as a Bearer token) when no Authorization header was already set, then an
// OAuth access token as a last resort.
func BuildHeaders(def *mcpconfig.ServerDefinition, oauthAccessToken string) map[string]string {
	out := make(map[string]string, len(def.Headers)+1)
	for k, v := range def.Headers {
		out[k] = v
	}
	if _, has := out["Authorization"]; has {
		return out
	}
	if def.APIKey != "" {
		out["Authorization"] = "Bearer " + def.APIKey
		return out
	}
	if oauthAccessToken != "" {
		out["Authorization"] = "Bearer " + oauthAccessToken
	}
	return out
}
