package mcpconfig

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ica-mcp/proxy/internal/hashutil"
	"github.com/ica-mcp/proxy/internal/icahome"
	"github.com/ica-mcp/proxy/internal/mcperrors"
)

const (
	envInlineConfig  = "MCP_CONFIG"
	envConfigPath    = "MCP_CONFIG_PATH"
	envPreferHome    = "ICA_MCP_CONFIG_PREFER_HOME"
	envStrictTrust   = "ICA_MCP_STRICT_TRUST"
	envAllowStdio    = "ICA_MCP_ALLOW_PROJECT_STDIO"
	projectMCPJSON   = ".mcp.json"
	homeServersJSON  = "mcp-servers.json"
	homeFallbackJSON = "mcp.json"
	legacyClaudeJSON = ".claude.json"
)

// ProjectConfigPath returns the path of a project's .mcp.json relative to
// projectRoot, the same file the trust gate hashes.
func ProjectConfigPath(projectRoot string) string {
	return filepath.Join(projectRoot, projectMCPJSON)
}

// Loader loads and normalizes the merged server configuration, applying
// placeholder expansion and the strict-trust gate.
type Loader struct {
	// ScriptFile seeds ICA_HOME inference; pass the invoking binary's
	// argv[0]-equivalent path, or "" to rely on the ICA_HOME env var alone.
	ScriptFile string
	// ProjectRoot is the directory .mcp.json is resolved relative to;
	// defaults to os.Getwd() when empty.
	ProjectRoot string
	// Trust is consulted for the strict-trust gate; may be nil, in which
	// case strict trust (if enabled) blocks every project stdio server.
	Trust *TrustStore
}

// Load produces the merged, expanded, trust-gated server configuration.
func (l *Loader) Load() (*LoadedServers, error) {
	projectRoot := l.ProjectRoot
	if projectRoot == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, mcperrors.Configuration("mcpconfig.Load", err)
		}
		projectRoot = wd
	}

	result := &LoadedServers{
		ServerSources:  map[string]string{},
		BlockedServers: map[string]string{},
		ProjectRoot:    projectRoot,
	}

	var raw map[string]any
	var sourceOf map[string]string

	switch {
	case os.Getenv(envInlineConfig) != "":
		doc, err := parseInline(os.Getenv(envInlineConfig))
		if err != nil {
			return nil, mcperrors.Configuration("mcpconfig.Load: MCP_CONFIG", err)
		}
		raw = rawDocument(doc)
		sourceOf = uniformSource(raw, "env:"+envInlineConfig)
		result.Sources = []string{"env:" + envInlineConfig}

	case os.Getenv(envConfigPath) != "":
		path := os.Getenv(envConfigPath)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, mcperrors.Configuration("mcpconfig.Load: MCP_CONFIG_PATH", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, mcperrors.Configuration("mcpconfig.Load: MCP_CONFIG_PATH", err)
		}
		raw = rawDocument(doc)
		sourceOf = uniformSource(raw, "env_file:"+path)
		result.Sources = []string{"env_file:" + path}

	default:
		projectPath := filepath.Join(projectRoot, projectMCPJSON)
		projectLayer, projectFound, err := readLayer("project:"+projectMCPJSON, projectPath)
		if err != nil {
			return nil, mcperrors.Configuration("mcpconfig.Load: "+projectPath, err)
		}
		if projectFound {
			if content, err := os.ReadFile(projectPath); err == nil {
				result.ProjectMCPSHA256 = hashutil.SHA256Hex(content)
			}
		}

		homePath, homeLabel := l.homeConfigPath()
		var homeLayer *layer
		var homeFound bool
		if homePath != "" {
			homeLayer, homeFound, err = readLayer(homeLabel, homePath)
			if err != nil {
				return nil, mcperrors.Configuration("mcpconfig.Load: "+homePath, err)
			}
		}

		if !projectFound && !homeFound {
			legacyPath, legacyLayer, legacyFound, err := l.legacyLayer()
			if err != nil {
				return nil, mcperrors.Configuration("mcpconfig.Load: "+legacyPath, err)
			}
			if legacyFound {
				raw = legacyLayer.raw
				sourceOf = uniformSource(raw, legacyLayer.label)
				result.Sources = []string{legacyLayer.label}
				break
			}
			raw = map[string]any{}
			sourceOf = map[string]string{}
			break
		}

		preferHome := envBool(os.Getenv(envPreferHome))
		winner, loser := projectLayer, homeLayer
		if preferHome {
			winner, loser = homeLayer, projectLayer
		}
		raw, sourceOf = mergeLayers(winner, loser)

		for _, lyr := range []*layer{loser, winner} {
			if lyr != nil {
				result.Sources = append(result.Sources, lyr.label)
			}
		}
	}

	expanded := expandPlaceholders(raw).(map[string]any)
	servers := parseDefinitions(expanded, result.BlockedServers)

	for name := range servers {
		if src, ok := sourceOf[name]; ok {
			result.ServerSources[name] = originTag(src)
		}
	}

	if err := l.applyTrustGate(projectRoot, servers, result); err != nil {
		return nil, err
	}

	result.Servers = servers
	return result, nil
}

func parseInline(s string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func uniformSource(raw map[string]any, label string) map[string]string {
	out := make(map[string]string, len(raw))
	for name := range raw {
		out[name] = label
	}
	return out
}

// originTag collapses a layer label like "project:.mcp.json" down to its
// origin kind ("project", "home", "env", "env_file", "legacy") for the
// per-server ServerSources view.
func originTag(label string) string {
	for i, r := range label {
		if r == ':' {
			return label[:i]
		}
	}
	return label
}

func (l *Loader) homeConfigPath() (path, label string) {
	home := icahome.Resolve(l.ScriptFile)
	if home == "" {
		return "", ""
	}
	primary := filepath.Join(home, homeServersJSON)
	if _, err := os.Stat(primary); err == nil {
		return primary, "home:" + homeServersJSON
	}
	fallback := filepath.Join(home, homeFallbackJSON)
	return fallback, "home:" + homeFallbackJSON
}

func (l *Loader) legacyLayer() (string, *layer, bool, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", nil, false, nil //nolint:nilerr // no legacy fallback possible without a home dir
	}
	path := filepath.Join(dir, legacyClaudeJSON)
	lyr, found, err := readLayer("legacy:"+legacyClaudeJSON, path)
	return path, lyr, found, err
}

// applyTrustGate enforces strict trust: when ICA_MCP_STRICT_TRUST is set and
// ICA_MCP_ALLOW_PROJECT_STDIO is not, a stdio server whose origin is the
// project layer is dropped into BlockedServers unless the project root is
// trusted at its current .mcp.json content hash. Servers sourced from home,
// env, or legacy config, and all remote (non-stdio) servers, are never
// subject to this gate.
func (l *Loader) applyTrustGate(projectRoot string, servers map[string]*ServerDefinition, result *LoadedServers) error {
	if !envBool(os.Getenv(envStrictTrust)) || envBool(os.Getenv(envAllowStdio)) {
		return nil
	}

	var content []byte
	if result.ProjectMCPSHA256 != "" {
		data, err := os.ReadFile(filepath.Join(projectRoot, projectMCPJSON))
		if err == nil {
			content = data
		}
	}

	trusted := false
	if l.Trust != nil && content != nil {
		status, err := l.Trust.Status(projectRoot, content)
		if err != nil {
			return err
		}
		trusted = status.Trusted
	}

	for name, def := range servers {
		if result.ServerSources[name] != "project" || !def.IsStdio() {
			continue
		}
		if !trusted {
			result.BlockedServers[name] = "project stdio server requires trust; run trust_project"
			delete(servers, name)
			delete(result.ServerSources, name)
		}
	}
	return nil
}

func envBool(v string) bool {
	switch v {
	case "1", "true", "TRUE", "True", "yes":
		return true
	default:
		return false
	}
}
