package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ica-mcp/proxy/internal/mcperrors"
)

type discoveryDocument struct {
	AuthorizationEndpoint       string `json:"authorization_endpoint"`
	TokenEndpoint               string `json:"token_endpoint"`
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
}

// discover fetches an OIDC issuer's well-known configuration and extracts
// the three endpoint URLs a flow might need. timeout defaults to 10s.
func discover(issuer string, timeout time.Duration) (endpoints, error) {
	if issuer == "" {
		return endpoints{}, mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.discover", "oidc flow requires an issuer")
	}
	if err := checkSchemeAllowed(issuer); err != nil {
		return endpoints{}, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	url := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return endpoints{}, mcperrors.Configuration("oauthflow.discover", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return endpoints{}, mcperrors.Timeout("oauthflow.discover", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return endpoints{}, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.discover", "discovery document fetch failed: %s", resp.Status)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return endpoints{}, mcperrors.Configuration("oauthflow.discover", fmt.Errorf("decode discovery document: %w", err))
	}

	return endpoints{
		AuthorizationURL:       doc.AuthorizationEndpoint,
		TokenURL:               doc.TokenEndpoint,
		DeviceAuthorizationURL: doc.DeviceAuthorizationEndpoint,
	}, nil
}
