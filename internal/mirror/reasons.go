package mirror

import "fmt"

func tooManyServersReason(total, max int) string {
	return fmt.Sprintf("Too many servers (%d) > ICA_MCP_PROXY_MAX_SERVERS (%d).", total, max)
}

func tooManyToolsReason(server string, total, max int) string {
	return fmt.Sprintf("Server %q tools truncated (%d) > ICA_MCP_PROXY_MAX_TOOLS_PER_SERVER (%d).", server, total, max)
}

func totalToolsReason(max int) string {
	return fmt.Sprintf("Total tools truncated at ICA_MCP_PROXY_MAX_TOTAL_TOOLS (%d).", max)
}

func schemaTruncatedReason(proxyName string, bytes, max int) string {
	return fmt.Sprintf("Tool schema truncated for %q (%d bytes) > ICA_MCP_PROXY_MAX_SCHEMA_BYTES (%d).", proxyName, bytes, max)
}

func serverUnavailableReason(server string, err error) string {
	return fmt.Sprintf("Server %q unavailable: %v", server, err)
}
