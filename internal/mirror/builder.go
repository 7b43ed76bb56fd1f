package mirror

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ica-mcp/proxy/internal/hashutil"
	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
)

// UpstreamClient is the subset of *upstream.Manager the mirror builder
// needs, narrowed to an interface so the catalogue logic can be tested
// without opening real upstream sessions.
type UpstreamClient interface {
	ListTools(ctx context.Context, def *mcpconfig.ServerDefinition) ([]mcp.Tool, error)
	PruneMissing(ctx context.Context, validServers map[string]struct{})
}

var sanitizeRe = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func sanitize(s string) string {
	return sanitizeRe.ReplaceAllString(s, "_")
}

var nameOK = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var openSchema = map[string]any{"type": "object", "additionalProperties": true}

// MirrorTarget resolves a mirrored tool name back to its upstream server
// and tool name.
type MirrorTarget struct {
	Server string
	Tool   string
}

type cachedTools struct {
	tools    []mcp.Tool
	loadedAt time.Time
}

// Builder maintains the cached, namespaced tool catalogue mirrored from
// every configured upstream, applying the server/per-server-tool/total-tool
// caps in that order, and the per-tool schema-size cap last.
type Builder struct {
	Load     func() (*mcpconfig.LoadedServers, error)
	Upstream UpstreamClient
	Caps     Caps

	mu             sync.Mutex
	serversLoadAt  time.Time
	servers        map[string]*mcpconfig.ServerDefinition
	sources        []string
	blockedServers map[string]string

	toolsMu    sync.Mutex
	toolsCache map[string]cachedTools

	mirrorMu   sync.Mutex
	mirrorMap  map[string]MirrorTarget
	lastStatus *Status
}

// NewBuilder constructs a Builder.
func NewBuilder(load func() (*mcpconfig.LoadedServers, error), mgr UpstreamClient, caps Caps) *Builder {
	return &Builder{
		Load:       load,
		Upstream:   mgr,
		Caps:       caps,
		toolsCache: map[string]cachedTools{},
		mirrorMap:  map[string]MirrorTarget{},
	}
}

// GetServers returns the current merged server set, reloading config at
// most once per Caps.ServersReloadTTL and pruning workers for servers that
// disappeared.
func (b *Builder) GetServers(ctx context.Context) (map[string]*mcpconfig.ServerDefinition, []string, map[string]string, error) {
	b.mu.Lock()
	stale := time.Since(b.serversLoadAt) > b.Caps.ServersReloadTTL
	if !stale && b.servers != nil {
		servers, sources, blocked := b.servers, b.sources, b.blockedServers
		b.mu.Unlock()
		return servers, sources, blocked, nil
	}
	b.mu.Unlock()

	loaded, err := b.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	b.mu.Lock()
	b.servers = loaded.Servers
	b.sources = loaded.Sources
	b.blockedServers = loaded.BlockedServers
	b.serversLoadAt = time.Now()
	servers, sources, blocked := b.servers, b.sources, b.blockedServers
	b.mu.Unlock()

	valid := make(map[string]struct{}, len(servers))
	for name := range servers {
		valid[name] = struct{}{}
	}
	b.Upstream.PruneMissing(ctx, valid)

	return servers, sources, blocked, nil
}

// ListUpstreamTools returns server's tool list, using the per-server cache
// when fresh.
func (b *Builder) ListUpstreamTools(ctx context.Context, server string) ([]mcp.Tool, error) {
	servers, _, _, err := b.GetServers(ctx)
	if err != nil {
		return nil, err
	}
	def, ok := servers[server]
	if !ok {
		return nil, mcperrors.Newf(mcperrors.KindConfiguration, "mirror.Builder.ListUpstreamTools", "unknown upstream server: %s", server)
	}

	b.toolsMu.Lock()
	if cached, ok := b.toolsCache[server]; ok && time.Since(cached.loadedAt) < b.Caps.ToolCacheTTL {
		b.toolsMu.Unlock()
		return cached.tools, nil
	}
	b.toolsMu.Unlock()

	tools, err := b.Upstream.ListTools(ctx, def)
	if err != nil {
		return nil, err
	}

	b.toolsMu.Lock()
	b.toolsCache[server] = cachedTools{tools: tools, loadedAt: time.Now()}
	b.toolsMu.Unlock()

	return tools, nil
}

// InvalidateServerTools drops the cached tool list for server, forcing the
// next ListUpstreamTools call to hit the upstream.
func (b *Builder) InvalidateServerTools(server string) {
	b.toolsMu.Lock()
	delete(b.toolsCache, server)
	b.toolsMu.Unlock()
}

// BuildCatalogue rebuilds the mirrored tool list across every server,
// applying the ordered truncation caps, and records the resulting Status.
func (b *Builder) BuildCatalogue(ctx context.Context) ([]mcp.Tool, error) {
	servers, sources, blocked, err := b.GetServers(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	status := &Status{
		Sources:        sources,
		ServersTotal:   len(names),
		BlockedServers: blocked,
	}

	if len(names) > b.Caps.MaxServers {
		status.Truncated = true
		status.Reasons = append(status.Reasons, tooManyServersReason(len(names), b.Caps.MaxServers))
		names = names[:b.Caps.MaxServers]
	}
	status.ServersMirrored = len(names)

	mirrored := make([]mcp.Tool, 0, 64)
	mirrorMap := make(map[string]MirrorTarget, 64)

outer:
	for _, server := range names {
		upstreamTools, err := b.ListUpstreamTools(ctx, server)
		if err != nil {
			status.Truncated = true
			status.Reasons = append(status.Reasons, serverUnavailableReason(server, err))
			continue
		}
		status.ToolsTotal += len(upstreamTools)

		toolsForServer := upstreamTools
		if len(upstreamTools) > b.Caps.MaxToolsPerServer {
			status.Truncated = true
			status.Reasons = append(status.Reasons, tooManyToolsReason(server, len(upstreamTools), b.Caps.MaxToolsPerServer))
			toolsForServer = upstreamTools[:b.Caps.MaxToolsPerServer]
		}

		for _, t := range toolsForServer {
			if status.ToolsMirrored >= b.Caps.MaxTotalTools {
				status.Truncated = true
				status.Reasons = append(status.Reasons, totalToolsReason(b.Caps.MaxTotalTools))
				break outer
			}

			mirroredTool, proxyName := b.mirrorOne(server, t, mirrorMap, status)
			mirrored = append(mirrored, mirroredTool)
			mirrorMap[proxyName] = MirrorTarget{Server: server, Tool: t.Name}
			status.ToolsMirrored++
		}
	}

	b.mirrorMu.Lock()
	b.mirrorMap = mirrorMap
	b.lastStatus = status
	b.mirrorMu.Unlock()

	return append(BrokerToolDefs(), mirrored...), nil
}

func (b *Builder) mirrorOne(server string, t mcp.Tool, existing map[string]MirrorTarget, status *Status) (mcp.Tool, string) {
	proxyName := sanitize(server) + "." + sanitize(t.Name)
	if !nameOK.MatchString(proxyName) {
		proxyName = sanitize(proxyName)
	}
	if _, collide := existing[proxyName]; collide {
		proxyName = proxyName + "__" + hashutil.SHA1Hex6(server+":"+t.Name)
	}

	inputSchema := t.RawInputSchema
	if len(inputSchema) == 0 {
		inputSchema, _ = json.Marshal(openSchema)
	}

	if len(inputSchema) > b.Caps.MaxSchemaBytes {
		status.Truncated = true
		status.Reasons = append(status.Reasons, schemaTruncatedReason(proxyName, len(inputSchema), b.Caps.MaxSchemaBytes))
		inputSchema, _ = json.Marshal(openSchema)
	}

	desc := t.Description
	if len(desc) > 4000 {
		desc = desc[:4000]
	}

	mirroredTool := mcp.Tool{
		Name:           proxyName,
		Description:    desc,
		RawInputSchema: inputSchema,
		Annotations:    t.Annotations,
	}

	return mirroredTool, proxyName
}

// ResolveMirror maps a proxy-facing tool name back to its upstream target,
// falling back to a "server.tool" literal split when the name isn't in the
// current catalogue (e.g. the caller used a name from a stale listing).
func (b *Builder) ResolveMirror(proxyToolName string) (MirrorTarget, bool) {
	b.mirrorMu.Lock()
	target, ok := b.mirrorMap[proxyToolName]
	b.mirrorMu.Unlock()
	if ok {
		return target, true
	}

	for i, r := range proxyToolName {
		if r == '.' {
			return MirrorTarget{Server: proxyToolName[:i], Tool: proxyToolName[i+1:]}, true
		}
	}
	return MirrorTarget{}, false
}

// MirrorStatus returns the JSON-serializable status of the most recent
// BuildCatalogue call, or an "unknown" placeholder before the first call.
func (b *Builder) MirrorStatus() any {
	b.mirrorMu.Lock()
	defer b.mirrorMu.Unlock()
	if b.lastStatus == nil {
		return unknownStatus
	}
	return b.lastStatus
}
