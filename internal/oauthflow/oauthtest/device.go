package oauthtest

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// handleDeviceAuthorization handles POST /device_authorization requests.
func (s *OAuthTestServer) handleDeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.options.EnableDeviceCode {
		s.deviceError(w, http.StatusBadRequest, "unsupported_grant_type", "Device code flow is disabled")
		return
	}

	if err := r.ParseForm(); err != nil {
		s.deviceError(w, http.StatusBadRequest, "invalid_request", "Failed to parse form")
		return
	}

	clientID := r.FormValue("client_id")
	scope := r.FormValue("scope")
	resource := r.FormValue("resource")

	// Validate client
	_, exists := s.GetClient(clientID)
	if !exists {
		s.deviceError(w, http.StatusUnauthorized, "invalid_client", "Unknown client")
		return
	}

	// Generate device code and user code
	deviceCode := generateRandomString(32)
	userCode := generateUserCode()

	// Parse scopes
	scopes := s.parseScopes(scope)

	// Build verification URIs
	verificationURI := s.issuerURL + "/device_verification"
	verificationURIComplete := fmt.Sprintf("%s?user_code=%s", verificationURI, userCode)

	// Create device code entry
	dc := &DeviceCode{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		ClientID:                clientID,
		Scopes:                  scopes,
		Resource:                resource,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURIComplete,
		ExpiresAt:               time.Now().Add(s.options.DeviceCodeExpiry),
		Interval:                s.options.DeviceCodeInterval,
		Status:                  Pending,
	}

	s.mu.Lock()
	s.deviceCodes[deviceCode] = dc
	s.mu.Unlock()

	// Build response
	resp := DeviceAuthorizationResponse{
		DeviceCode:              deviceCode,
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: verificationURIComplete,
		ExpiresIn:               int(s.options.DeviceCodeExpiry.Seconds()),
		Interval:                s.options.DeviceCodeInterval,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleDeviceVerification handles GET/POST /device_verification requests.
func (s *OAuthTestServer) handleDeviceVerification(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleDeviceVerificationGET(w, r)
	case http.MethodPost:
		s.handleDeviceVerificationPOST(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleDeviceVerificationGET displays the device verification form.
func (s *OAuthTestServer) handleDeviceVerificationGET(w http.ResponseWriter, r *http.Request) {
	userCode := r.URL.Query().Get("user_code")

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>Device Verification</title>
    <style>
        body { font-family: sans-serif; max-width: 400px; margin: 50px auto; padding: 20px; }
        input { width: 100%%; padding: 10px; margin: 10px 0; box-sizing: border-box; }
        button { width: 48%%; padding: 10px; margin: 5px 1%%; cursor: pointer; }
        .approve { background: #4CAF50; color: white; border: none; }
        .deny { background: #f44336; color: white; border: none; }
        .error { color: red; padding: 10px; background: #fee; border-radius: 5px; }
    </style>
</head>
<body>
    <h1>Device Verification</h1>
    <p>Enter the code displayed on your device:</p>
    <form method="POST">
        <input type="text" name="user_code" placeholder="Enter code" value="%s" required>
        <div>
            <button type="submit" name="action" value="approve" class="approve">Approve</button>
            <button type="submit" name="action" value="deny" class="deny">Deny</button>
        </div>
    </form>
</body>
</html>`, userCode)

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

// handleDeviceVerificationPOST processes the device verification form.
func (s *OAuthTestServer) handleDeviceVerificationPOST(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	userCode := r.FormValue("user_code")
	action := r.FormValue("action")

	// Find device code by user code
	s.mu.Lock()
	var found *DeviceCode
	for _, dc := range s.deviceCodes {
		if dc.UserCode == userCode {
			found = dc
			break
		}
	}

	if found == nil {
		s.mu.Unlock()
		s.renderDeviceResult(w, "error", "Invalid or expired code")
		return
	}

	if found.IsExpired() {
		found.Status = Expired
		s.mu.Unlock()
		s.renderDeviceResult(w, "error", "Code has expired")
		return
	}

	if found.Status != Pending {
		s.mu.Unlock()
		s.renderDeviceResult(w, "error", "Code has already been used")
		return
	}

	if action == "approve" {
		found.Status = Approved
		found.ApprovedScopes = found.Scopes
		found.Subject = "testuser" // In real flow, this would come from authentication
		s.mu.Unlock()
		s.renderDeviceResult(w, "success", "Device authorized! You can close this window.")
	} else {
		found.Status = Denied
		s.mu.Unlock()
		s.renderDeviceResult(w, "denied", "Authorization denied. You can close this window.")
	}
}

// renderDeviceResult renders the result page.
func (s *OAuthTestServer) renderDeviceResult(w http.ResponseWriter, status, message string) {
	color := "#4CAF50"
	if status == "error" || status == "denied" {
		color = "#f44336"
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>Device Verification Result</title>
    <style>
        body { font-family: sans-serif; max-width: 400px; margin: 50px auto; padding: 20px; text-align: center; }
        .result { padding: 20px; border-radius: 5px; background: %s; color: white; }
    </style>
</head>
<body>
    <div class="result">
        <h2>%s</h2>
    </div>
</body>
</html>`, color, message)

	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}

// handleDeviceCodeGrant handles the device_code grant type in /token.
func (s *OAuthTestServer) handleDeviceCodeGrant(w http.ResponseWriter, r *http.Request) {
	if !s.options.EnableDeviceCode {
		s.tokenError(w, http.StatusBadRequest, "unsupported_grant_type", "Device code flow is disabled")
		return
	}

	deviceCode := r.FormValue("device_code")
	clientID := r.FormValue("client_id")

	// Check for error injection
	if s.options.ErrorMode.DeviceSlowPoll {
		s.tokenError(w, http.StatusBadRequest, "slow_down", "Polling too frequently")
		return
	}

	if s.options.ErrorMode.DeviceExpired {
		s.tokenError(w, http.StatusBadRequest, "expired_token", "Device code has expired")
		return
	}

	// Validate client
	_, exists := s.GetClient(clientID)
	if !exists {
		s.tokenError(w, http.StatusUnauthorized, "invalid_client", "Unknown client")
		return
	}

	// Find device code
	s.mu.RLock()
	dc, exists := s.deviceCodes[deviceCode]
	s.mu.RUnlock()

	if !exists {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "Invalid device code")
		return
	}

	if dc.ClientID != clientID {
		s.tokenError(w, http.StatusBadRequest, "invalid_grant", "Device code belongs to different client")
		return
	}

	// Check status
	switch dc.Status {
	case Pending:
		s.tokenError(w, http.StatusBadRequest, "authorization_pending", "User has not yet authorized")
		return
	case Denied:
		s.tokenError(w, http.StatusBadRequest, "access_denied", "User denied the authorization")
		return
	case Expired:
		s.tokenError(w, http.StatusBadRequest, "expired_token", "Device code has expired")
		return
	case Approved:
		// Continue to issue tokens
	}

	if dc.IsExpired() {
		s.tokenError(w, http.StatusBadRequest, "expired_token", "Device code has expired")
		return
	}

	// Generate tokens
	accessToken, err := s.generateAccessToken(dc.Subject, clientID, dc.ApprovedScopes, dc.Resource)
	if err != nil {
		s.tokenError(w, http.StatusInternalServerError, "server_error", "Failed to generate access token")
		return
	}

	var refreshToken string
	if s.options.EnableRefreshToken {
		refreshToken = s.generateRefreshToken(dc.Subject, clientID, dc.ApprovedScopes, dc.Resource)
	}

	// Record for test verification
	s.recordIssuedToken(TokenInfo{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ClientID:     clientID,
		Subject:      dc.Subject,
		Scopes:       dc.ApprovedScopes,
		Resource:     dc.Resource,
		IssuedAt:     time.Now(),
		ExpiresAt:    time.Now().Add(s.options.AccessTokenExpiry),
	})

	// Send response
	resp := TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.options.AccessTokenExpiry.Seconds()),
		Scope:       strings.Join(dc.ApprovedScopes, " "),
	}
	if refreshToken != "" {
		resp.RefreshToken = refreshToken
	}

	s.sendTokenResponse(w, resp)
}

// deviceError sends a device authorization error response.
func (s *OAuthTestServer) deviceError(w http.ResponseWriter, status int, errorCode, description string) {
	resp := OAuthError{
		Error:            errorCode,
		ErrorDescription: description,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// generateUserCode creates a user-friendly code (e.g., "ABCD-1234").
func generateUserCode() string {
	chars := "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Avoid confusing characters
	code := make([]byte, 8)
	for i := range code {
		b := make([]byte, 1)
		_, _ = randRead(b)
		code[i] = chars[int(b[0])%len(chars)]
	}
	return string(code[:4]) + "-" + string(code[4:])
}

// randRead fills b with random bytes from crypto/rand.
func randRead(b []byte) (int, error) {
	return rand.Read(b)
}

// ApproveDeviceCode marks a device code as approved.
// Use for programmatic device flow testing without UI interaction.
func (s *OAuthTestServer) ApproveDeviceCode(userCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dc := range s.deviceCodes {
		if dc.UserCode == userCode {
			if dc.Status != Pending {
				return fmt.Errorf("device code is not pending")
			}
			dc.Status = Approved
			dc.ApprovedScopes = dc.Scopes
			dc.Subject = "testuser"
			return nil
		}
	}
	return fmt.Errorf("device code not found")
}

// DenyDeviceCode marks a device code as denied.
func (s *OAuthTestServer) DenyDeviceCode(userCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dc := range s.deviceCodes {
		if dc.UserCode == userCode {
			if dc.Status != Pending {
				return fmt.Errorf("device code is not pending")
			}
			dc.Status = Denied
			return nil
		}
	}
	return fmt.Errorf("device code not found")
}

// ExpireDeviceCode marks a device code as expired.
func (s *OAuthTestServer) ExpireDeviceCode(userCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dc := range s.deviceCodes {
		if dc.UserCode == userCode {
			dc.Status = Expired
			dc.ExpiresAt = time.Now().Add(-1 * time.Hour)
			return nil
		}
	}
	return fmt.Errorf("device code not found")
}
