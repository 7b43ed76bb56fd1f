package oauthflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
	"github.com/ica-mcp/proxy/internal/tokenstore"
)

// DeviceCodePrompt is invoked once the provider has issued a device code,
// so the caller can surface the verification URL and user code to the
// operator (on a terminal, this is typically printed directly).
type DeviceCodePrompt func(verificationURI, verificationURIComplete, userCode string)

type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

type deviceTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	Error        string `json:"error"`
}

// RunDeviceCode drives the RFC 8628 device authorization flow: request a
// device code, prompt the user to visit the verification URL, then poll the
// token endpoint at the provider-specified interval until the user
// completes authorization or the device code expires.
func RunDeviceCode(ctx context.Context, cfg *mcpconfig.OAuthConfig, prompt DeviceCodePrompt) (Result, error) {
	eps, err := endpointsFor(cfg)
	if err != nil {
		return Result{}, err
	}
	if eps.DeviceAuthorizationURL == "" || eps.TokenURL == "" {
		return Result{}, mcperrors.Newf(mcperrors.KindConfiguration, "oauthflow.RunDeviceCode", "missing device_authorization_url/token_url")
	}
	for _, u := range []string{eps.DeviceAuthorizationURL, eps.TokenURL} {
		if err := checkSchemeAllowed(u); err != nil {
			return Result{}, err
		}
	}

	reqTimeout := requestTimeoutOrDefault(cfg)

	auth, err := requestDeviceCode(ctx, eps.DeviceAuthorizationURL, cfg, reqTimeout)
	if err != nil {
		return Result{}, err
	}
	if prompt != nil {
		prompt(auth.VerificationURI, auth.VerificationURIComplete, auth.UserCode)
	}

	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	totalTimeout := cfg.AuthTimeout
	if totalTimeout <= 0 {
		if auth.ExpiresIn > 0 {
			totalTimeout = time.Duration(auth.ExpiresIn) * time.Second
		} else {
			totalTimeout = defaultAuthTimeout
		}
	}
	pollCtx, cancel := context.WithTimeout(ctx, totalTimeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			return Result{}, mcperrors.Timeout("oauthflow.RunDeviceCode", pollCtx.Err())
		case <-ticker.C:
			res, pending, err := pollDeviceToken(pollCtx, eps.TokenURL, cfg, auth.DeviceCode, reqTimeout)
			if err != nil {
				return Result{}, err
			}
			if pending {
				continue
			}
			return res, nil
		}
	}
}

func requestDeviceCode(ctx context.Context, endpoint string, cfg *mcpconfig.OAuthConfig, timeout time.Duration) (deviceAuthResponse, error) {
	form := url.Values{"client_id": {cfg.ClientID}}
	if len(cfg.Scopes) > 0 {
		form.Set("scope", cfg.ScopeString())
	}
	for k, v := range cfg.ExtraAuthParams {
		form.Set(k, v)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return deviceAuthResponse{}, mcperrors.Configuration("oauthflow.requestDeviceCode", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return deviceAuthResponse{}, mcperrors.Timeout("oauthflow.requestDeviceCode", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return deviceAuthResponse{}, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.requestDeviceCode", "device authorization request failed: %s: %s", resp.Status, body)
	}

	var out deviceAuthResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return deviceAuthResponse{}, mcperrors.Configuration("oauthflow.requestDeviceCode", fmt.Errorf("decode device authorization response: %w", err))
	}
	return out, nil
}

// pollDeviceToken makes one poll attempt; pending=true means the caller
// should keep waiting (authorization_pending / slow_down).
func pollDeviceToken(ctx context.Context, endpoint string, cfg *mcpconfig.OAuthConfig, deviceCode string, timeout time.Duration) (Result, bool, error) {
	form := url.Values{
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
		"client_id":   {cfg.ClientID},
	}
	if cfg.ClientSecret != "" {
		form.Set("client_secret", cfg.ClientSecret)
	}
	for k, v := range cfg.ExtraTokenParams {
		form.Set(k, v)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, false, mcperrors.Configuration("oauthflow.pollDeviceToken", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Result{}, false, mcperrors.Timeout("oauthflow.pollDeviceToken", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var out deviceTokenResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, false, mcperrors.Configuration("oauthflow.pollDeviceToken", fmt.Errorf("decode device token response: %w", err))
	}

	switch out.Error {
	case "":
		return Result{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			TokenType:    out.TokenType,
			ExpiresIn:    time.Duration(out.ExpiresIn) * time.Second,
			Scope:        out.Scope,
			GrantType:    tokenstore.GrantDeviceCode,
		}, false, nil
	case "authorization_pending", "slow_down":
		return Result{}, true, nil
	default:
		return Result{}, false, mcperrors.Newf(mcperrors.KindAuth, "oauthflow.pollDeviceToken", "provider reported error: %s", out.Error)
	}
}
