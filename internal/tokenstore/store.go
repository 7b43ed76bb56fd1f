// Package tokenstore persists OAuth tokens for upstream MCP servers at
// $ICA_HOME/mcp-tokens.json, one entry per server name.
package tokenstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ica-mcp/proxy/internal/atomicfile"
	"github.com/ica-mcp/proxy/internal/icahome"
	"github.com/ica-mcp/proxy/internal/mcperrors"
)

// GrantType records which OAuth flow produced a cached token.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantDeviceCode        GrantType = "device_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefresh           GrantType = "refresh"
)

// TokenEntry is the persisted OAuth credential state for one upstream.
type TokenEntry struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ObtainedAt   time.Time `json:"obtained_at"`
	GrantType    GrantType `json:"grant_type,omitempty"`
}

// Expired reports whether the access token is past its expiry, with a small
// safety margin so a worker doesn't hand out a token that expires mid-flight.
func (e TokenEntry) Expired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(e.ExpiresAt.Add(-30 * time.Second))
}

type document struct {
	Version int                   `json:"version"`
	Servers map[string]TokenEntry `json:"servers"`
}

// Store is the on-disk token document.
type Store struct {
	mu   sync.Mutex
	path string
}

// Path resolves the token store location: $ICA_HOME/mcp-tokens.json.
func Path(scriptFile string) (string, error) {
	home, err := icahome.RequireForWrite(scriptFile)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "mcp-tokens.json"), nil
}

// Open constructs a Store rooted at path.
func Open(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() document {
	doc := document{Version: 1, Servers: map[string]TokenEntry{}}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Malformed content must never leak a half-read credential; treat as empty.
		return document{Version: 1, Servers: map[string]TokenEntry{}}
	}
	if doc.Servers == nil {
		doc.Servers = map[string]TokenEntry{}
	}
	return doc
}

func (s *Store) save(doc document) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return mcperrors.Dependency("tokenstore.save", err)
	}
	if err := atomicfile.WriteFile(s.path, raw, 0o600); err != nil {
		return mcperrors.Dependency("tokenstore.save", err)
	}
	return nil
}

// Get returns the stored entry for server, and whether one exists.
func (s *Store) Get(server string) (TokenEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.load().Servers[server]
	return entry, ok
}

// Put stores or replaces the entry for server.
func (s *Store) Put(server string, entry TokenEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	doc.Servers[server] = entry
	return s.save(doc)
}

// Delete removes the entry for server, if any.
func (s *Store) Delete(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if _, ok := doc.Servers[server]; !ok {
		return nil
	}
	delete(doc.Servers, server)
	return s.save(doc)
}
