// Package mcpsession opens a client session against one upstream MCP
// server, selecting stdio, SSE, or streamable-HTTP transport from the
// server's definition, and performs the MCP initialize handshake.
package mcpsession

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
)

const clientName = "ica-mcp-proxy"

// clientVersion is stamped into the initialize handshake; bumped alongside
// releases of this binary.
const clientVersion = "1.0.0"

// Open starts a transport and completes the MCP initialize handshake for
// def, with headers already resolved (see oauthflow.BuildHeaders) for
// remote transports. The caller owns the returned client and must Close it.
// On a failed initialize handshake Open closes the client itself and returns
// nil, so a caller that checks err alone never leaks a started subprocess or
// connection.
func Open(ctx context.Context, def *mcpconfig.ServerDefinition, headers map[string]string) (*client.Client, error) {
	var transportImpl transport.Interface
	var err error

	switch {
	case def.IsStdio():
		transportImpl = transport.NewStdio(def.Command, subprocessEnv(def.Env), def.Args...)
	case def.IsRemote():
		transportImpl, err = remoteTransport(def, headers)
		if err != nil {
			return nil, err
		}
	default:
		return nil, mcperrors.Newf(mcperrors.KindConfiguration, "mcpsession.Open", "server %q has neither command nor url", def.Name)
	}

	c := client.NewClient(transportImpl)

	startCtx, cancel := context.WithTimeout(ctx, connectTimeout(def))
	defer cancel()

	if err := c.Start(startCtx); err != nil {
		return nil, mcperrors.Upstream("mcpsession.Open: start "+def.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: clientVersion}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	if _, err := c.Initialize(startCtx, initReq); err != nil {
		c.Close() //nolint:errcheck
		return nil, mcperrors.Upstream("mcpsession.Open: initialize "+def.Name, err)
	}

	return c, nil
}

func remoteTransport(def *mcpconfig.ServerDefinition, headers map[string]string) (transport.Interface, error) {
	switch strings.ToLower(def.Type) {
	case "", "streamable_http", "streamable-http", "http":
		return transport.NewStreamableHTTP(def.URL, transport.WithHTTPHeaders(headers))
	case "sse":
		return transport.NewSSE(def.URL, transport.WithHeaders(headers))
	default:
		return nil, mcperrors.Newf(mcperrors.KindConfiguration, "mcpsession.remoteTransport", "server %q: unsupported transport type %q", def.Name, def.Type)
	}
}

func connectTimeout(def *mcpconfig.ServerDefinition) time.Duration {
	if def.Timeout > 0 {
		return def.Timeout
	}
	return 30 * time.Second
}

// subprocessEnv overlays the current process environment with the
// definition's per-server env, the form transport.NewStdio expects
// ("KEY=VALUE" entries).
func subprocessEnv(overlay map[string]string) []string {
	base := os.Environ()
	if len(overlay) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(overlay))
	out = append(out, base...)
	for k, v := range overlay {
		out = append(out, k+"="+v)
	}
	return out
}
