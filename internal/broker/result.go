package broker

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// jsonResult marshals v as indented JSON text content, matching the wire
// shape the reference implementation's dict-returning proxy.* handlers
// produced once the MCP server serialized them.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func rawSchemaToAny(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
