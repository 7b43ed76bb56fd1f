package upstream

import (
	"context"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ica-mcp/proxy/internal/hashutil"
	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/mcperrors"
	"github.com/ica-mcp/proxy/internal/mcpsession"
)

// Manager owns the pooled Workers for stdio upstreams, and serializes
// one-shot sessions for non-pooled (remote, or pooling-disabled) upstreams
// behind a per-server lock so concurrent callers never race to open two
// sessions against the same server.
type Manager struct {
	IdleTTL        time.Duration
	RequestTimeout time.Duration
	PoolStdio      bool
	Headers        HeaderResolver

	mu      sync.Mutex
	workers map[string]*Worker
	locks   map[string]*sync.Mutex
}

// NewManager constructs a Manager. headers resolves per-request auth
// headers for remote upstreams; may be nil if no upstream uses OAuth/api_key.
func NewManager(idleTTL, requestTimeout time.Duration, poolStdio bool, headers HeaderResolver) *Manager {
	return &Manager{
		IdleTTL:        idleTTL,
		RequestTimeout: requestTimeout,
		PoolStdio:      poolStdio,
		Headers:        headers,
		workers:        map[string]*Worker{},
		locks:          map[string]*sync.Mutex{},
	}
}

func (m *Manager) lockFor(server string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[server]
	if !ok {
		l = &sync.Mutex{}
		m.locks[server] = l
	}
	return l
}

// shouldPool reports whether def's transport should use a pooled Worker
// rather than a fresh one-shot session per call.
func (m *Manager) shouldPool(def *mcpconfig.ServerDefinition) bool {
	return m.PoolStdio && def.IsStdio()
}

func (m *Manager) getWorker(def *mcpconfig.ServerDefinition) *Worker {
	fp := hashutil.ConfigFingerprint(def.Raw)

	m.mu.Lock()
	existing, ok := m.workers[def.Name]
	if ok && existing.ConfigFingerprint != fp {
		delete(m.workers, def.Name)
		ok = false
	}
	if !ok {
		existing = NewWorker(def, m.IdleTTL, m.RequestTimeout, m.Headers)
		m.workers[def.Name] = existing
	}
	m.mu.Unlock()

	if ok && existing.ConfigFingerprint == fp {
		return existing
	}
	existing.Start()
	return existing
}

// PruneMissing shuts down and removes workers for servers no longer present
// in validServers, called after every config reload.
func (m *Manager) PruneMissing(ctx context.Context, validServers map[string]struct{}) {
	m.mu.Lock()
	var stale []*Worker
	for name, worker := range m.workers {
		if _, ok := validServers[name]; !ok {
			stale = append(stale, worker)
			delete(m.workers, name)
		}
	}
	m.mu.Unlock()

	for _, worker := range stale {
		worker.Shutdown(ctx)
	}
}

// Invalidate force-recycles the worker for server, if any.
func (m *Manager) Invalidate(ctx context.Context, server string) {
	m.mu.Lock()
	worker, ok := m.workers[server]
	if ok {
		delete(m.workers, server)
	}
	m.mu.Unlock()

	if ok {
		worker.Shutdown(ctx)
	}
}

// Shutdown stops every pooled worker.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.workers = map[string]*Worker{}
	m.mu.Unlock()

	for _, w := range workers {
		w.Shutdown(ctx)
	}
}

// ListTools returns def's current tool list, via a pooled worker for stdio
// or a fresh one-shot session otherwise.
func (m *Manager) ListTools(ctx context.Context, def *mcpconfig.ServerDefinition) ([]mcp.Tool, error) {
	if m.shouldPool(def) {
		return m.getWorker(def).ListTools(ctx)
	}
	return m.oneShot(ctx, def, func(s *client.Client) (workerResponse, error) {
		res, err := s.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return workerResponse{}, err
		}
		return workerResponse{tools: res.Tools}, nil
	})
}

// CallTool invokes tool on def, via a pooled worker for stdio or a fresh
// one-shot session otherwise.
func (m *Manager) CallTool(ctx context.Context, def *mcpconfig.ServerDefinition, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	if m.shouldPool(def) {
		return m.getWorker(def).CallTool(ctx, tool, args)
	}
	resp, err := m.oneShot(ctx, def, func(s *client.Client) (workerResponse, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = tool
		req.Params.Arguments = args
		res, err := s.CallTool(ctx, req)
		if err != nil {
			return workerResponse{}, err
		}
		return workerResponse{call: res}, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.call, nil
}

func (m *Manager) oneShot(ctx context.Context, def *mcpconfig.ServerDefinition, fn func(*client.Client) (workerResponse, error)) (workerResponse, error) {
	lock := m.lockFor(def.Name)
	lock.Lock()
	defer lock.Unlock()

	headers, err := m.resolveHeaders(ctx, def)
	if err != nil {
		return workerResponse{}, err
	}
	session, err := mcpsession.Open(ctx, def, headers)
	if err != nil {
		return workerResponse{}, err
	}
	defer session.Close() //nolint:errcheck

	resp, err := fn(session)
	if err != nil {
		return workerResponse{}, mcperrors.Upstream("upstream.Manager.oneShot "+def.Name, err)
	}
	return resp, nil
}

func (m *Manager) resolveHeaders(ctx context.Context, def *mcpconfig.ServerDefinition) (map[string]string, error) {
	if m.Headers == nil {
		return nil, nil
	}
	return m.Headers(ctx, def)
}
