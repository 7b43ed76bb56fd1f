package mcpconfig

import (
	"fmt"
	"regexp"
	"time"
)

// nameOK matches the protocol-safe server/tool name charset.
var nameOK = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// reservedName is the namespace the broker tools live under; a server
// configured under this name is silently dropped (never blocked — it's not
// a trust decision, just a reserved word).
const reservedName = "proxy"

// rawDocument normalizes a parsed JSON document into name -> raw definition
// map, accepting either a top-level "mcpServers" object or a bare map.
func rawDocument(doc map[string]any) map[string]any {
	if servers, ok := doc["mcpServers"].(map[string]any); ok {
		return servers
	}
	return doc
}

// parseDefinitions turns a raw name->object map into ServerDefinitions,
// dropping entries that are not objects or lack both "command" and "url".
// The reserved "proxy" name is dropped silently; invalid names are reported
// via blocked with a reason so the caller can choose to surface them.
func parseDefinitions(raw map[string]any, blocked map[string]string) map[string]*ServerDefinition {
	out := make(map[string]*ServerDefinition, len(raw))
	for name, v := range raw {
		if name == reservedName {
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		_, hasCommand := obj["command"]
		_, hasURL := obj["url"]
		if !hasCommand && !hasURL {
			continue
		}
		if !nameOK.MatchString(name) {
			blocked[name] = fmt.Sprintf("invalid server name %q: must match [A-Za-z0-9_.-]+", name)
			continue
		}
		def, err := parseDefinition(name, obj)
		if err != nil {
			blocked[name] = err.Error()
			continue
		}
		out[name] = def
	}
	return out
}

func parseDefinition(name string, obj map[string]any) (*ServerDefinition, error) {
	def := &ServerDefinition{Name: name, Raw: obj}

	def.Command, _ = obj["command"].(string)
	def.Cwd, _ = obj["cwd"].(string)
	def.Args = stringSlice(obj["args"])
	def.Env = stringMap(obj["env"])

	def.URL, _ = obj["url"].(string)
	def.Type, _ = obj["type"].(string)
	def.Headers = stringMap(obj["headers"])
	def.APIKey, _ = obj["api_key"].(string)

	if t, ok := obj["timeout"]; ok {
		d, err := parseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("server %q: invalid timeout: %w", name, err)
		}
		def.Timeout = d
	}

	if rawOAuth, ok := obj["oauth"].(map[string]any); ok {
		oauth, err := parseOAuthConfig(name, rawOAuth)
		if err != nil {
			return nil, err
		}
		def.OAuth = oauth
	}

	return def, nil
}

func parseOAuthConfig(serverName string, obj map[string]any) (*OAuthConfig, error) {
	cfg := &OAuthConfig{
		ExtraAuthParams:  stringMap(obj["extra_auth_params"]),
		ExtraTokenParams: stringMap(obj["extra_token_params"]),
	}

	flow, _ := obj["type"].(string)
	cfg.Type = OAuthFlow(flow)
	switch cfg.Type {
	case FlowPKCE, FlowOIDCPKCE, FlowDeviceCode, FlowOIDCDeviceCode, FlowClientCredentials:
	case "":
		cfg.Type = FlowPKCE
	default:
		return nil, fmt.Errorf("server %q: unsupported oauth type %q", serverName, flow)
	}

	cfg.Issuer, _ = obj["issuer"].(string)
	cfg.AuthorizationURL, _ = obj["authorization_url"].(string)
	cfg.TokenURL, _ = obj["token_url"].(string)
	cfg.DeviceAuthorizationURL, _ = obj["device_authorization_url"].(string)
	cfg.ClientID, _ = obj["client_id"].(string)
	cfg.ClientSecret, _ = obj["client_secret"].(string)
	cfg.RedirectURI, _ = obj["redirect_uri"].(string)
	cfg.Scopes = scopesOf(obj["scopes"])

	if t, ok := obj["auth_timeout"]; ok {
		d, err := parseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("server %q: invalid oauth.auth_timeout: %w", serverName, err)
		}
		cfg.AuthTimeout = d
	}
	if t, ok := obj["request_timeout"]; ok {
		d, err := parseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("server %q: invalid oauth.request_timeout: %w", serverName, err)
		}
		cfg.RequestTimeout = d
	}

	return cfg, nil
}

// scopesOf accepts either a JSON array of strings or a single
// space-delimited string, per spec §3 OAuthConfig.scopes.
func scopesOf(v any) []string {
	switch t := v.(type) {
	case []any:
		return stringSlice(t)
	case string:
		return splitScopes(t)
	default:
		return nil
	}
}

func splitScopes(s string) []string {
	var out []string
	start := -1
	for i, r := range s {
		if r == ' ' {
			if start >= 0 {
				out = append(out, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, s[start:])
	}
	return out
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func parseDuration(v any) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		return time.ParseDuration(t)
	case float64:
		return time.Duration(t) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v (%T)", v, v)
	}
}
