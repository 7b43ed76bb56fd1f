package oauthflow

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
	"github.com/ica-mcp/proxy/internal/tokenstore"
)

// MaybeRefresh returns (entry, false, nil) unchanged if it isn't expired.
// If it is expired and was minted by the client-credentials grant, it mints
// a fresh token and returns (minted, true, nil). If it is expired and
// carries a refresh token, it exchanges the refresh token for a new access
// token and returns (refreshed, true, nil). Otherwise an expired entry
// yields an AuthError so the caller re-runs the full interactive flow
// instead of looping on a refresh that can never succeed.
func MaybeRefresh(ctx context.Context, cfg *mcpconfig.OAuthConfig, entry tokenstore.TokenEntry) (tokenstore.TokenEntry, bool, error) {
	if !entry.Expired(time.Now()) {
		return entry, false, nil
	}
	if entry.GrantType == tokenstore.GrantClientCredentials {
		minted, err := RunClientCredentials(ctx, cfg)
		if err != nil {
			return tokenstore.TokenEntry{}, false, err
		}
		return minted.Entry(time.Now()), true, nil
	}
	if entry.RefreshToken == "" {
		return tokenstore.TokenEntry{}, false, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.MaybeRefresh", "access token expired and no refresh token is available")
	}

	eps, err := endpointsFor(cfg)
	if err != nil {
		return tokenstore.TokenEntry{}, false, err
	}
	if eps.TokenURL == "" {
		return tokenstore.TokenEntry{}, false, mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.MaybeRefresh", "missing token_url")
	}
	if err := checkSchemeAllowed(eps.TokenURL); err != nil {
		return tokenstore.TokenEntry{}, false, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: eps.TokenURL},
	}
	src := oauthCfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  entry.AccessToken,
		RefreshToken: entry.RefreshToken,
		TokenType:    entry.TokenType,
		Expiry:       entry.ExpiresAt,
	})

	token, err := src.Token()
	if err != nil {
		return tokenstore.TokenEntry{}, false, mcperrors.Auth("oauthflow.MaybeRefresh", err)
	}
	result := fromOAuth2Token(token)
	if result.RefreshToken == "" {
		result.RefreshToken = entry.RefreshToken
	}
	result.GrantType = tokenstore.GrantRefresh
	return result.Entry(time.Now()), true, nil
}
