// Package oauthflow implements the five OAuth flow shapes a remote upstream
// can require: authorization-code+PKCE (explicit or OIDC-discovered),
// RFC 8628 device code (explicit or OIDC-discovered), and client
// credentials. Each flow returns a Result convertible to a
// tokenstore.TokenEntry.
package oauthflow

import (
	"time"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/tokenstore"
)

// Result is the outcome of a successful token acquisition or refresh.
type Result struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    time.Duration
	Scope        string
	GrantType    tokenstore.GrantType
}

// Entry converts a Result into a tokenstore.TokenEntry stamped with now.
func (r Result) Entry(now time.Time) tokenstore.TokenEntry {
	entry := tokenstore.TokenEntry{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Scope:        r.Scope,
		ObtainedAt:   now,
		GrantType:    r.GrantType,
	}
	if r.ExpiresIn > 0 {
		entry.ExpiresAt = now.Add(r.ExpiresIn)
	}
	return entry
}

// endpoints is the resolved set of OAuth endpoints a flow needs, either
// taken directly from config or discovered from an OIDC issuer.
type endpoints struct {
	AuthorizationURL       string
	TokenURL               string
	DeviceAuthorizationURL string
}

func endpointsFor(cfg *mcpconfig.OAuthConfig) (endpoints, error) {
	if cfg.Type.IsOIDC() {
		return discover(cfg.Issuer, cfg.RequestTimeout)
	}
	return endpoints{
		AuthorizationURL:       cfg.AuthorizationURL,
		TokenURL:               cfg.TokenURL,
		DeviceAuthorizationURL: cfg.DeviceAuthorizationURL,
	}, nil
}
