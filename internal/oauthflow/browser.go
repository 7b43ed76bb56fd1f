package oauthflow

import (
	"net/url"

	"github.com/pkg/browser"

	"github.com/ica-mcp/proxy/internal/mcperrors"
)

// openBrowser launches the user's default browser at target, refusing any
// scheme other than http/https so a malicious authorization_url can't be
// used to open an arbitrary local resource.
func openBrowser(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return mcperrors.Configuration("oauthflow.openBrowser", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.openBrowser", "refusing to open non-http(s) URL scheme %q", u.Scheme)
	}
	if err := browser.OpenURL(target); err != nil {
		return mcperrors.Dependency("oauthflow.openBrowser", err)
	}
	return nil
}
