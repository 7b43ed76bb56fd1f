package oauthflow

import (
	"net/url"

	"github.com/ica-mcp/proxy/internal/mcperrors"
)

// checkSchemeAllowed enforces the broker-wide rule that every OAuth network
// call targets https, except loopback http used for local discovery/testing
// and the redirect URI's own loopback listener.
func checkSchemeAllowed(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return mcperrors.Configuration("oauthflow.checkSchemeAllowed", err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if u.Scheme == "http" && isLoopbackHost(u.Hostname()) {
		return nil
	}
	return mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.checkSchemeAllowed",
		"forbidden URL scheme %q for %q: only https, or http to a loopback address, is allowed", u.Scheme, rawURL)
}

func isLoopbackHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
