package mcpconfig

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ica-mcp/proxy/internal/atomicfile"
	"github.com/ica-mcp/proxy/internal/hashutil"
	"github.com/ica-mcp/proxy/internal/icahome"
	"github.com/ica-mcp/proxy/internal/mcperrors"
)

// TrustEntry records that a project's .mcp.json was approved at a given
// content hash, and when.
type TrustEntry struct {
	MCPSHA256 string    `json:"mcp_sha256"`
	TrustedAt time.Time `json:"trusted_at"`
}

type trustDocument struct {
	Version  int                   `json:"version"`
	Projects map[string]TrustEntry `json:"projects"`
}

// TrustStore is the on-disk record of trusted project roots, keyed by
// absolute project path. A project is trusted only for the exact .mcp.json
// content it was trusted at: editing the file untrusts it.
type TrustStore struct {
	mu   sync.Mutex
	path string
}

// TrustPath resolves the trust store location: ICA_MCP_TRUST_PATH, else
// $ICA_HOME/mcp-trust.json.
func TrustPath(scriptFile string) (string, error) {
	if p := os.Getenv("ICA_MCP_TRUST_PATH"); p != "" {
		return p, nil
	}
	home, err := icahome.RequireForWrite(scriptFile)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "mcp-trust.json"), nil
}

// OpenTrustStore constructs a TrustStore rooted at path.
func OpenTrustStore(path string) *TrustStore {
	return &TrustStore{path: path}
}

func (s *TrustStore) load() (trustDocument, error) {
	doc := trustDocument{Version: 1, Projects: map[string]TrustEntry{}}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, mcperrors.Dependency("trust.load", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		// A corrupt trust file is treated as "nothing trusted" rather than a
		// startup-blocking error: trust is re-establishable by the operator.
		return trustDocument{Version: 1, Projects: map[string]TrustEntry{}}, nil
	}
	if doc.Projects == nil {
		doc.Projects = map[string]TrustEntry{}
	}
	return doc, nil
}

func (s *TrustStore) save(doc trustDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return mcperrors.Dependency("trust.save", err)
	}
	if err := atomicfile.WriteFile(s.path, raw, 0o600); err != nil {
		return mcperrors.Dependency("trust.save", err)
	}
	return nil
}

// TrustProject records projectRoot as trusted at mcpJSONContent's hash.
func (s *TrustStore) TrustProject(projectRoot string, mcpJSONContent []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Projects[projectRoot] = TrustEntry{
		MCPSHA256: hashutil.SHA256Hex(mcpJSONContent),
		TrustedAt: time.Now().UTC(),
	}
	return s.save(doc)
}

// UntrustProject removes any trust record for projectRoot. Not an error if
// none exists.
func (s *TrustStore) UntrustProject(projectRoot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	delete(doc.Projects, projectRoot)
	return s.save(doc)
}

// TrustStatus reports whether projectRoot is currently trusted for the
// given live .mcp.json content: the project must both have a trust record
// and that record's hash must match the file's current content.
type TrustStatus struct {
	Trusted    bool
	Entry      TrustEntry
	ContentHit bool // true if a record exists and its hash matches the current content
}

// Status evaluates trust for projectRoot against mcpJSONContent.
func (s *TrustStore) Status(projectRoot string, mcpJSONContent []byte) (TrustStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return TrustStatus{}, err
	}
	entry, ok := doc.Projects[projectRoot]
	if !ok {
		return TrustStatus{}, nil
	}
	currentHash := hashutil.SHA256Hex(mcpJSONContent)
	if entry.MCPSHA256 != currentHash {
		return TrustStatus{Entry: entry, ContentHit: false}, nil
	}
	return TrustStatus{Trusted: true, Entry: entry, ContentHit: true}, nil
}
