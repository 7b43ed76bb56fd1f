package oauthflow

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
	"github.com/ica-mcp/proxy/internal/tokenstore"
)

const defaultAuthTimeout = 5 * time.Minute

// RunPKCE drives the authorization-code-with-PKCE flow end to end: it opens
// a loopback listener, launches the browser at the provider's authorization
// endpoint, waits for the redirect, then exchanges the code for tokens.
func RunPKCE(ctx context.Context, cfg *mcpconfig.OAuthConfig) (Result, error) {
	eps, err := endpointsFor(cfg)
	if err != nil {
		return Result{}, err
	}
	if eps.AuthorizationURL == "" || eps.TokenURL == "" {
		return Result{}, mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.RunPKCE", "missing authorization_url/token_url (or OIDC discovery failed to populate them)")
	}
	for _, u := range []string{eps.AuthorizationURL, eps.TokenURL} {
		if err := checkSchemeAllowed(u); err != nil {
			return Result{}, err
		}
	}

	params, err := newPKCEParams()
	if err != nil {
		return Result{}, mcperrors.Dependency("oauthflow.RunPKCE", err)
	}

	cb, err := newCallbackServer()
	if err != nil {
		return Result{}, err
	}
	cb.Start()

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = cb.RedirectURI()
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  eps.AuthorizationURL,
			TokenURL: eps.TokenURL,
		},
	}

	authOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", params.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	for k, v := range cfg.ExtraAuthParams {
		authOpts = append(authOpts, oauth2.SetAuthURLParam(k, v))
	}
	authURL := oauthCfg.AuthCodeURL(params.State, authOpts...)
	// A browser that fails to launch does not abort the flow; only a refused
	// URL does.
	if err := openBrowser(authURL); err != nil && !mcperrors.Is(err, mcperrors.KindDependency) {
		return Result{}, err
	}

	timeout := cfg.AuthTimeout
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	redirect, err := cb.Wait(waitCtx)
	if err != nil {
		return Result{}, err
	}
	if redirect.Err != "" {
		return Result{}, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.RunPKCE", "provider reported authorization error: %s", redirect.Err)
	}
	if redirect.State != params.State {
		return Result{}, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.RunPKCE", "state mismatch on redirect: possible CSRF")
	}
	if redirect.Code == "" {
		return Result{}, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.RunPKCE", "redirect carried no authorization code")
	}

	exchangeOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_verifier", params.Verifier),
	}
	for k, v := range cfg.ExtraTokenParams {
		exchangeOpts = append(exchangeOpts, oauth2.SetAuthURLParam(k, v))
	}

	exchangeCtx, exchangeCancel := context.WithTimeout(ctx, requestTimeoutOrDefault(cfg))
	defer exchangeCancel()

	token, err := oauthCfg.Exchange(exchangeCtx, redirect.Code, exchangeOpts...)
	if err != nil {
		return Result{}, mcperrors.Auth("oauthflow.RunPKCE", err)
	}
	res := fromOAuth2Token(token)
	res.GrantType = tokenstore.GrantAuthorizationCode
	return res, nil
}

func requestTimeoutOrDefault(cfg *mcpconfig.OAuthConfig) time.Duration {
	if cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return 30 * time.Second
}

func fromOAuth2Token(token *oauth2.Token) Result {
	res := Result{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}
	if !token.Expiry.IsZero() {
		res.ExpiresIn = time.Until(token.Expiry)
	}
	if scope, ok := token.Extra("scope").(string); ok {
		res.Scope = scope
	}
	return res
}

// validateRedirectURI is used by config validation to reject a configured
// redirect_uri that isn't loopback http or https, per the broker-wide
// scheme policy.
func validateRedirectURI(raw string) error {
	if raw == "" {
		return nil
	}
	if _, err := url.Parse(raw); err != nil {
		return mcperrors.Configuration("oauthflow.validateRedirectURI", err)
	}
	return checkSchemeAllowed(raw)
}
