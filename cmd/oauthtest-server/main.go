// Command oauthtest-server runs a standalone OAuth 2.1 authorization server
// for manually exercising the broker's proxy.auth_* tools against PKCE,
// device-code, and client-credentials flows without a real identity
// provider.
//
// Usage:
//
//	go run ./cmd/oauthtest-server -port 9000
//	go run ./cmd/oauthtest-server -port 9000 -no-dcr -no-device-code
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ica-mcp/proxy/internal/oauthflow/oauthtest"
)

func main() {
	port := flag.Int("port", 9000, "Port to listen on")

	noAuthCode := flag.Bool("no-auth-code", false, "Disable authorization code flow")
	noDeviceCode := flag.Bool("no-device-code", false, "Disable device code flow (RFC 8628)")
	noDCR := flag.Bool("no-dcr", false, "Disable dynamic client registration (RFC 7591)")
	noClientCreds := flag.Bool("no-client-credentials", false, "Disable client credentials flow")
	noRefreshToken := flag.Bool("no-refresh-token", false, "Disable refresh tokens")

	requirePKCE := flag.Bool("require-pkce", true, "Require PKCE for authorization code flow (RFC 7636)")
	requireResource := flag.Bool("require-resource", false, "Require RFC 8707 resource indicator")

	detectionMode := flag.String("detection", "both", "OAuth detection mode: discovery, www-authenticate, explicit, both")

	accessTokenTTL := flag.Duration("access-token-ttl", time.Hour, "Access token expiry duration")
	refreshTokenTTL := flag.Duration("refresh-token-ttl", 24*time.Hour, "Refresh token expiry duration")

	flag.Parse()

	var dm oauthtest.DetectionMode
	switch strings.ToLower(*detectionMode) {
	case "discovery":
		dm = oauthtest.Discovery
	case "www-authenticate", "wwwauthenticate":
		dm = oauthtest.WWWAuthenticate
	case "explicit":
		dm = oauthtest.Explicit
	case "both":
		dm = oauthtest.Both
	default:
		log.Fatalf("invalid detection mode: %s (valid: discovery, www-authenticate, explicit, both)", *detectionMode)
	}

	opts := oauthtest.Options{
		EnableAuthCode:          !*noAuthCode,
		EnableDeviceCode:        !*noDeviceCode,
		EnableDCR:               !*noDCR,
		EnableClientCredentials: !*noClientCreds,
		EnableRefreshToken:      !*noRefreshToken,

		RequirePKCE:              *requirePKCE,
		RequireResourceIndicator: *requireResource,

		DetectionMode: dm,

		AccessTokenExpiry:  *accessTokenTTL,
		RefreshTokenExpiry: *refreshTokenTTL,

		Clients: []oauthtest.ClientConfig{
			{
				ClientID:   "test-client",
				ClientName: "Test Client",
				RedirectURIs: []string{
					"http://127.0.0.1/callback",
					"http://localhost/callback",
				},
			},
		},
	}

	server := oauthtest.StartOnPort(nil, *port, opts)

	fmt.Println("========================================")
	fmt.Println("OAuth Test Server")
	fmt.Println("========================================")
	fmt.Printf("Listening on:      http://localhost:%d\n", *port)
	fmt.Printf("Issuer:            %s\n", server.IssuerURL)
	fmt.Println()
	fmt.Println("Endpoints:")
	if opts.EnableAuthCode {
		fmt.Printf("  Authorization:   %s\n", server.AuthorizationEndpoint)
	}
	fmt.Printf("  Token:           %s\n", server.TokenEndpoint)
	fmt.Printf("  JWKS:            %s\n", server.JWKSURL)
	if dm == oauthtest.Discovery || dm == oauthtest.Both {
		fmt.Printf("  Discovery:       %s/.well-known/oauth-authorization-server\n", server.IssuerURL)
	}
	if opts.EnableDCR {
		fmt.Printf("  DCR:             %s/registration\n", server.IssuerURL)
	}
	if opts.EnableDeviceCode {
		fmt.Printf("  Device Auth:     %s/device_authorization\n", server.IssuerURL)
	}
	fmt.Println()
	fmt.Println("Test Credentials:  testuser / testpass")
	fmt.Printf("Public Client ID:  %s\n", server.PublicClientID)
	fmt.Printf("Confidential ID:   %s\n", server.ClientID)
	fmt.Printf("Confidential Secret: %s\n", server.ClientSecret)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("========================================")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")
	_ = server.Shutdown()
}
