// Package broker wires the mirror catalogue and the upstream manager into a
// live mark3labs/mcp-go server: it republishes the mirrored tool list on
// every rebuild and dispatches calls to either a proxy.* handler or a
// mirrored upstream tool.
package broker

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/metrics"
	"github.com/ica-mcp/proxy/internal/mirror"
	"github.com/ica-mcp/proxy/internal/tokenstore"
	"github.com/ica-mcp/proxy/internal/upstream"
)

const (
	serverName    = "ica-mcp-proxy"
	serverVersion = "1.0.0"
)

// Caller is the subset of *upstream.Manager the broker needs to dispatch
// mirrored tool calls, narrowed to an interface for testability.
type Caller interface {
	ListTools(ctx context.Context, def *mcpconfig.ServerDefinition) ([]mcp.Tool, error)
	CallTool(ctx context.Context, def *mcpconfig.ServerDefinition, tool string, args map[string]any) (*mcp.CallToolResult, error)
	Invalidate(ctx context.Context, server string)
}

// Broker owns the live *mcpserver.MCPServer and keeps its tool set in sync
// with the mirror.Builder's catalogue.
type Broker struct {
	Server *mcpserver.MCPServer

	mirror   *mirror.Builder
	upstream Caller
	tokens   *tokenstore.Store
	logger   *zap.Logger
	metrics  *metrics.Registry

	mu            sync.Mutex
	registered    map[string]struct{}
	serversCached map[string]*mcpconfig.ServerDefinition
}

// New constructs a Broker. metricsReg may be nil (metrics are then
// skipped); tokens must not be nil.
func New(builder *mirror.Builder, upstreamMgr Caller, tokens *tokenstore.Store, logger *zap.Logger, metricsReg *metrics.Registry) *Broker {
	b := &Broker{
		mirror:     builder,
		upstream:   upstreamMgr,
		tokens:     tokens,
		logger:     logger,
		metrics:    metricsReg,
		registered: map[string]struct{}{},
	}

	hooks := &mcpserver.Hooks{}
	hooks.AddOnError(func(_ context.Context, _ any, method mcp.MCPMethod, _ any, err error) {
		logger.Warn("mcp request failed", zap.String("method", string(method)), zap.Error(err))
	})

	b.Server = mcpserver.NewMCPServer(
		serverName,
		serverVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(hooks),
	)

	return b
}

// RefreshCatalogue rebuilds the mirrored tool list and reconciles it against
// what's currently registered on the live MCP server, adding new/changed
// tools and deleting ones that disappeared.
func (b *Broker) RefreshCatalogue(ctx context.Context) error {
	tools, err := b.mirror.BuildCatalogue(ctx)
	if err != nil {
		return err
	}

	servers, _, _, err := b.mirror.GetServers(ctx)
	if err == nil {
		b.mu.Lock()
		b.serversCached = servers
		b.mu.Unlock()
	}

	next := make(map[string]struct{}, len(tools))
	serverTools := make([]mcpserver.ServerTool, 0, len(tools))
	for _, t := range tools {
		next[t.Name] = struct{}{}
		serverTools = append(serverTools, mcpserver.ServerTool{
			Tool:    t,
			Handler: b.handlerFor(t.Name),
		})
	}

	b.mu.Lock()
	var stale []string
	for name := range b.registered {
		if _, ok := next[name]; !ok {
			stale = append(stale, name)
		}
	}
	b.registered = next
	b.mu.Unlock()

	if len(stale) > 0 {
		b.Server.DeleteTools(stale...)
	}
	b.Server.AddTools(serverTools...)

	if b.metrics != nil {
		status := b.mirror.MirrorStatus()
		if s, ok := status.(*mirror.Status); ok {
			b.metrics.SetCatalogueStats(s.ServersTotal, s.ToolsMirrored, s.Truncated)
		}
	}

	return nil
}

func (b *Broker) handlerFor(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if isBrokerTool(name) {
		return b.dispatchBrokerTool
	}
	return b.dispatchMirroredTool
}

func isBrokerTool(name string) bool {
	return len(name) > 6 && name[:6] == "proxy."
}

// Shutdown stops every pooled upstream session. Call it once on process exit.
func (b *Broker) Shutdown(ctx context.Context) {
	if mgr, ok := b.upstream.(*upstream.Manager); ok {
		mgr.Shutdown(ctx)
	}
}
