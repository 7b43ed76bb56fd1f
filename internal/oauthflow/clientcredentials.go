package oauthflow

import (
	"context"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
	"github.com/ica-mcp/proxy/internal/tokenstore"
)

// RunClientCredentials drives the machine-to-machine client-credentials
// grant: no browser, no user interaction.
func RunClientCredentials(ctx context.Context, cfg *mcpconfig.OAuthConfig) (Result, error) {
	eps, err := endpointsFor(cfg)
	if err != nil {
		return Result{}, err
	}
	if eps.TokenURL == "" {
		return Result{}, mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.RunClientCredentials", "missing token_url")
	}
	if err := checkSchemeAllowed(eps.TokenURL); err != nil {
		return Result{}, err
	}

	extra := make(map[string][]string, len(cfg.ExtraTokenParams))
	for k, v := range cfg.ExtraTokenParams {
		extra[k] = []string{v}
	}

	ccCfg := &clientcredentials.Config{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		TokenURL:       eps.TokenURL,
		Scopes:         cfg.Scopes,
		EndpointParams: extra,
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeoutOrDefault(cfg))
	defer cancel()

	token, err := ccCfg.Token(reqCtx)
	if err != nil {
		return Result{}, mcperrors.Auth("oauthflow.RunClientCredentials", err)
	}
	res := fromOAuth2Token(token)
	res.GrantType = tokenstore.GrantClientCredentials
	return res, nil
}
