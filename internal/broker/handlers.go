package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
	"github.com/ica-mcp/proxy/internal/oauthflow"
)

func (b *Broker) dispatchBrokerTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch req.Params.Name {
	case "proxy.list_servers":
		return b.handleListServers(ctx)
	case "proxy.mirror_status":
		return jsonResult(b.mirror.MirrorStatus())
	case "proxy.list_tools":
		return b.handleListTools(ctx, req)
	case "proxy.call":
		return b.handleCall(ctx, req)
	case "proxy.auth_start":
		return b.handleAuthStart(ctx, req)
	case "proxy.auth_status":
		return b.handleAuthStatus(ctx, req)
	case "proxy.auth_refresh":
		return b.handleAuthRefresh(ctx, req)
	case "proxy.auth_logout":
		return b.handleAuthLogout(ctx, req)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown proxy tool: %s", req.Params.Name)), nil
	}
}

// dispatchMirroredTool resolves a namespaced "server.tool" name back to its
// upstream target and forwards the call, passing the upstream's result
// through unchanged.
func (b *Broker) dispatchMirroredTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, ok := b.mirror.ResolveMirror(req.Params.Name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown tool: %s", req.Params.Name)), nil
	}

	def, err := b.resolveServerDef(target.Server)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	args, _ := req.Params.Arguments.(map[string]interface{})

	start := time.Now()
	result, err := b.upstream.CallTool(ctx, def, target.Tool, args)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if b.metrics != nil {
		b.metrics.RecordToolCall(target.Server, target.Tool, status, time.Since(start))
	}
	if err != nil {
		if mcperrors.Is(err, mcperrors.KindUpstream) && b.metrics != nil {
			b.metrics.RecordUpstreamError(target.Server, "upstream")
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result, nil
}

func (b *Broker) resolveServerDef(name string) (*mcpconfig.ServerDefinition, error) {
	b.mu.Lock()
	servers := b.serversCached
	b.mu.Unlock()

	if def, ok := servers[name]; ok {
		return def, nil
	}
	// Best-effort match against sanitized names, mirroring the reference
	// implementation's fallback when the mirrored name collapsed characters
	// the literal server name still carries.
	for serverName, def := range servers {
		sanitized := strings.Map(func(r rune) rune {
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '.' || r == '-' {
				return r
			}
			return '_'
		}, serverName)
		if sanitized == name {
			return def, nil
		}
	}
	return nil, mcperrors.Newf(mcperrors.KindConfiguration, "broker.resolveServerDef", "unknown upstream server: %s", name)
}

func (b *Broker) handleListServers(ctx context.Context) (*mcp.CallToolResult, error) {
	servers, sources, blocked, err := b.mirror.GetServers(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	names := make([]string, 0, len(servers))
	for n := range servers {
		names = append(names, n)
	}
	sort.Strings(names)
	return jsonResult(map[string]any{
		"servers":         names,
		"sources":         sources,
		"blocked_servers": blocked,
	})
}

func (b *Broker) handleListTools(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	includeSchema := req.GetBool("include_schema", true)

	tools, err := b.mirror.ListUpstreamTools(ctx, server)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		entry := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if includeSchema {
			entry["inputSchema"] = rawSchemaToAny(t.RawInputSchema)
		} else {
			entry["inputSchema"] = nil
		}
		out = append(out, entry)
	}
	return jsonResult(map[string]any{"server": server, "tools": out})
}

func (b *Broker) handleCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tool, err := req.RequireString("tool")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var callArgs map[string]interface{}
	if argsMap, ok := req.Params.Arguments.(map[string]interface{}); ok {
		if raw, ok := argsMap["args"].(map[string]interface{}); ok {
			callArgs = raw
		}
	}
	if callArgs == nil {
		callArgs = map[string]interface{}{}
	}

	def, err := b.resolveServerDef(server)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	result, err := b.upstream.CallTool(ctx, def, tool, callArgs)
	status := "ok"
	if err != nil {
		status = "error"
	}
	if b.metrics != nil {
		b.metrics.RecordToolCall(server, tool, status, time.Since(start))
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result, nil
}

func (b *Broker) oauthServerConfig(ctx context.Context, server string) (*mcpconfig.ServerDefinition, error) {
	servers, _, _, err := b.mirror.GetServers(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := servers[server]
	if !ok {
		return nil, mcperrors.Newf(mcperrors.KindConfiguration, "broker.oauthServerConfig", "unknown upstream server: %s", server)
	}
	return def, nil
}

func (b *Broker) handleAuthStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := b.oauthServerConfig(ctx, server); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, ok := b.tokens.Get(server)
	if !ok {
		return jsonResult(map[string]any{"server": server, "status": "missing"})
	}
	return jsonResult(map[string]any{
		"server":     server,
		"status":     "present",
		"expires_at": entry.ExpiresAt,
		"expired":    entry.Expired(time.Now()),
		"scope":      entry.Scope,
		"token_type": entry.TokenType,
		"grant_type": entry.GrantType,
	})
}

func (b *Broker) handleAuthLogout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, existed := b.tokens.Get(server)
	if err := b.tokens.Delete(server); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b.upstream.Invalidate(ctx, server)

	status := "missing"
	if existed {
		status = "deleted"
	}
	return jsonResult(map[string]any{"server": server, "status": status})
}

func (b *Broker) handleAuthStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	def, err := b.oauthServerConfig(ctx, server)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if def.OAuth == nil {
		return mcp.NewToolResultError("server has no oauth configuration"), nil
	}

	flow := strings.ToLower(req.GetString("flow", string(def.OAuth.Type)))
	result, err := b.runFlow(ctx, flow, def)
	b.upstream.Invalidate(ctx, server)
	return b.finishFlow(server, flow, result, err)
}

func (b *Broker) handleAuthRefresh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	server, err := req.RequireString("server")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	def, err := b.oauthServerConfig(ctx, server)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if def.OAuth == nil {
		return mcp.NewToolResultError("server has no oauth configuration"), nil
	}

	flow := strings.ToLower(string(def.OAuth.Type))

	if flow == string(mcpconfig.FlowClientCredentials) {
		result, err := oauthflow.RunClientCredentials(ctx, def.OAuth)
		b.upstream.Invalidate(ctx, server)
		return b.finishFlow(server, flow, result, err)
	}

	entry, ok := b.tokens.Get(server)
	if !ok {
		b.upstream.Invalidate(ctx, server)
		return jsonResult(map[string]any{"server": server, "status": "missing"})
	}
	refreshed, changed, err := oauthflow.MaybeRefresh(ctx, def.OAuth, entry)
	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordOAuthFlow(server, flow, "error")
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if changed {
		if err := b.tokens.Put(server, refreshed); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	b.upstream.Invalidate(ctx, server)
	if b.metrics != nil {
		b.metrics.RecordOAuthFlow(server, flow, "ok")
	}
	return jsonResult(map[string]any{"server": server, "status": "ok"})
}

func (b *Broker) runFlow(ctx context.Context, flow string, def *mcpconfig.ServerDefinition) (oauthflow.Result, error) {
	switch mcpconfig.OAuthFlow(flow) {
	case mcpconfig.FlowDeviceCode, mcpconfig.FlowOIDCDeviceCode:
		return oauthflow.RunDeviceCode(ctx, def.OAuth, func(verificationURI, verificationURIComplete, userCode string) {
			b.logger.Info("device code authorization required",
				zap.String("server", def.Name),
				zap.String("verification_uri", verificationURI),
				zap.String("verification_uri_complete", verificationURIComplete),
				zap.String("user_code", userCode),
			)
		})
	case mcpconfig.FlowClientCredentials:
		return oauthflow.RunClientCredentials(ctx, def.OAuth)
	default:
		return oauthflow.RunPKCE(ctx, def.OAuth)
	}
}

func (b *Broker) finishFlow(server, flow string, result oauthflow.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if b.metrics != nil {
			b.metrics.RecordOAuthFlow(server, flow, "error")
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry := result.Entry(time.Now())
	if err := b.tokens.Put(server, entry); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if b.metrics != nil {
		b.metrics.RecordOAuthFlow(server, flow, "ok")
	}
	return jsonResult(map[string]any{
		"server":     server,
		"status":     "ok",
		"expires_at": entry.ExpiresAt,
		"scope":      entry.Scope,
	})
}
