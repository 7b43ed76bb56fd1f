// Package mirror builds the namespaced "server.tool" catalogue the broker
// exposes, caching per-server tool lists and applying the ordered
// truncation caps from the reference implementation's build_tool_list.
package mirror

// Status summarizes the most recent catalogue rebuild, returned verbatim
// by the proxy.mirror_status broker tool.
type Status struct {
	Sources         []string          `json:"sources"`
	ServersTotal    int               `json:"servers_total"`
	ServersMirrored int               `json:"servers_mirrored"`
	ToolsTotal      int               `json:"tools_total"`
	ToolsMirrored   int               `json:"tools_mirrored"`
	Truncated       bool              `json:"truncated"`
	Reasons         []string          `json:"reasons"`
	BlockedServers  map[string]string `json:"blocked_servers"`
}

// unknownStatus is returned by Builder.MirrorStatus before the first rebuild.
var unknownStatus = map[string]any{
	"status": "unknown",
	"note":   "No mirror status yet. Call list_tools first.",
}
