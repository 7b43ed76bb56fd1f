package mirror

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func schema(v map[string]any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

var emptyObjectSchema = schema(map[string]any{"type": "object", "properties": map[string]any{}})

// BrokerToolDefs returns the eight fixed proxy.* tools, always present
// regardless of the mirror catalogue's truncation caps.
func BrokerToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:           "proxy.list_servers",
			Description:    "List configured upstream MCP servers (merged from .mcp.json and $ICA_HOME/mcp-servers.json).",
			RawInputSchema: emptyObjectSchema,
		},
		{
			Name:        "proxy.list_tools",
			Description: "List tools from one upstream server. Args: {server, include_schema?}.",
			RawInputSchema: schema(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"server":         map[string]any{"type": "string"},
					"include_schema": map[string]any{"type": "boolean", "default": true},
				},
				"required":             []string{"server"},
				"additionalProperties": false,
			}),
		},
		{
			Name:        "proxy.call",
			Description: "Call an upstream tool. Args: {server, tool, args}.",
			RawInputSchema: schema(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"server": map[string]any{"type": "string"},
					"tool":   map[string]any{"type": "string"},
					"args":   map[string]any{"type": "object", "additionalProperties": true, "default": map[string]any{}},
				},
				"required":             []string{"server", "tool"},
				"additionalProperties": false,
			}),
		},
		{
			Name:           "proxy.mirror_status",
			Description:    "Show mirroring/truncation status and config sources.",
			RawInputSchema: emptyObjectSchema,
		},
		{
			Name:        "proxy.auth_start",
			Description: "Start authentication for an upstream server. Args: {server, flow?}.",
			RawInputSchema: schema(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"server": map[string]any{"type": "string"},
					"flow":   map[string]any{"type": "string"},
				},
				"required":             []string{"server"},
				"additionalProperties": false,
			}),
		},
		{
			Name:        "proxy.auth_status",
			Description: "Show cached token status for an upstream server. Args: {server}.",
			RawInputSchema: schema(map[string]any{
				"type":       "object",
				"properties": map[string]any{"server": map[string]any{"type": "string"}},
				"required":   []string{"server"},
			}),
		},
		{
			Name:        "proxy.auth_refresh",
			Description: "Force refresh/re-mint credentials for an upstream server. Args: {server}.",
			RawInputSchema: schema(map[string]any{
				"type":       "object",
				"properties": map[string]any{"server": map[string]any{"type": "string"}},
				"required":   []string{"server"},
			}),
		},
		{
			Name:        "proxy.auth_logout",
			Description: "Delete cached credentials for an upstream server. Args: {server}.",
			RawInputSchema: schema(map[string]any{
				"type":       "object",
				"properties": map[string]any{"server": map[string]any{"type": "string"}},
				"required":   []string{"server"},
			}),
		},
	}
}
