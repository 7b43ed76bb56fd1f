package mirror

import (
	"os"
	"strconv"
	"time"
)

// Caps holds the tunable size limits applied while building the mirrored
// tool catalogue. Each is backed by an ICA_MCP_PROXY_* environment variable
// except ServersReloadTTL, which is fixed at 2s.
type Caps struct {
	ToolCacheTTL       time.Duration
	MaxServers         int
	MaxToolsPerServer  int
	MaxTotalTools      int
	MaxSchemaBytes     int
	PoolStdio          bool
	DisablePooling     bool
	UpstreamIdleTTL    time.Duration
	UpstreamReqTimeout time.Duration
	ServersReloadTTL   time.Duration
}

// CapsFromEnv reads Caps from the environment, applying the reference
// implementation's defaults where a variable is unset.
func CapsFromEnv() Caps {
	return Caps{
		ToolCacheTTL:       envSeconds("ICA_MCP_PROXY_TOOL_CACHE_TTL_S", 300),
		MaxServers:         envInt("ICA_MCP_PROXY_MAX_SERVERS", 25),
		MaxToolsPerServer:  envInt("ICA_MCP_PROXY_MAX_TOOLS_PER_SERVER", 200),
		MaxTotalTools:      envInt("ICA_MCP_PROXY_MAX_TOTAL_TOOLS", 2000),
		MaxSchemaBytes:     envInt("ICA_MCP_PROXY_MAX_SCHEMA_BYTES", 65536),
		PoolStdio:          envBool("ICA_MCP_PROXY_POOL_STDIO", true),
		DisablePooling:     envBool("ICA_MCP_PROXY_DISABLE_POOLING", false),
		UpstreamIdleTTL:    envSeconds("ICA_MCP_PROXY_UPSTREAM_IDLE_TTL_S", 90),
		UpstreamReqTimeout: envSeconds("ICA_MCP_PROXY_UPSTREAM_REQUEST_TIMEOUT_S", 120),
		ServersReloadTTL:   2 * time.Second,
	}
}

// EffectivePoolStdio reports whether stdio pooling is active, honoring the
// disable-pooling override.
func (c Caps) EffectivePoolStdio() bool {
	return c.PoolStdio && !c.DisablePooling
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envSeconds(name string, defSeconds float64) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return time.Duration(defSeconds * float64(time.Second))
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Duration(defSeconds * float64(time.Second))
	}
	return time.Duration(f * float64(time.Second))
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on", "TRUE", "True":
		return true
	case "0", "false", "no", "off", "FALSE", "False":
		return false
	default:
		return def
	}
}
