// Package upstream owns the per-server worker pool that multiplexes
// tools/list and tools/call requests onto a single long-lived upstream MCP
// session, grounded on the reference implementation's asyncio worker loop.
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

// HeaderResolver resolves the current request headers (api_key/oauth) for a
// server definition, called fresh on every session (re)open so a refreshed
// OAuth token is always picked up.
type HeaderResolver func(ctx context.Context, def *mcpconfig.ServerDefinition) (map[string]string, error)

type opKind int

const (
	opListTools opKind = iota
	opCallTool
	opShutdown
)

type workerRequest struct {
	op       opKind
	toolName string
	args     map[string]any
	result   chan workerResponse
}

type workerResponse struct {
	tools []mcp.Tool
	call  *mcp.CallToolResult
	err   error
}

// Worker owns one upstream session in a dedicated goroutine: every session
// enter/use/exit happens on that goroutine, so a canceled caller can never
// tear down a session another caller is mid-request on.
type Worker struct {
	ServerName        string
	ConfigFingerprint string

	def            *mcpconfig.ServerDefinition
	idleTTL        time.Duration
	requestTimeout time.Duration
	headers        HeaderResolver

	queue     chan workerRequest
	startOnce sync.Once
	done      chan struct{}
}

// NewWorker constructs a Worker for def; it does not start the goroutine
// until the first request arrives (or Start is called explicitly).
func NewWorker(def *mcpconfig.ServerDefinition, idleTTL, requestTimeout time.Duration, headers HeaderResolver) *Worker {
	return &Worker{
		ServerName:        def.Name,
		ConfigFingerprint: hashutil.ConfigFingerprint(def.Raw),
		def:               def,
		idleTTL:           idleTTL,
		requestTimeout:    requestTimeout,
		headers:           headers,
		queue:             make(chan workerRequest),
		done:              make(chan struct{}),
	}
}

// Start launches the worker goroutine if it has not already been started.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// ListTools requests the upstream's current tool list.
func (w *Worker) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	resp, err := w.request(ctx, workerRequest{op: opListTools})
	if err != nil {
		return nil, err
	}
	return resp.tools, resp.err
}

// CallTool invokes tool on the upstream with args.
func (w *Worker) CallTool(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	resp, err := w.request(ctx, workerRequest{op: opCallTool, toolName: tool, args: args})
	if err != nil {
		return nil, err
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.call, nil
}

func (w *Worker) request(ctx context.Context, req workerRequest) (workerResponse, error) {
	w.Start()
	req.result = make(chan workerResponse, 1)

	reqCtx := ctx
	var cancel context.CancelFunc
	if w.requestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
	}

	select {
	case w.queue <- req:
	case <-reqCtx.Done():
		return workerResponse{}, mcperrors.Timeout("upstream.Worker.request: enqueue "+w.ServerName, reqCtx.Err())
	case <-w.done:
		return workerResponse{}, mcperrors.Upstream("upstream.Worker.request", errWorkerStopped(w.ServerName))
	}

	select {
	case resp := <-req.result:
		return resp, nil
	case <-reqCtx.Done():
		return workerResponse{}, mcperrors.Timeout("upstream.Worker.request: "+w.ServerName, reqCtx.Err())
	}
}

// Shutdown stops the worker goroutine and closes its session, if any. Safe
// to call more than once.
func (w *Worker) Shutdown(ctx context.Context) {
	w.Start()
	result := make(chan workerResponse, 1)
	select {
	case w.queue <- workerRequest{op: opShutdown, result: result}:
		select {
		case <-result:
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	case <-w.done:
	case <-ctx.Done():
	}
}

func (w *Worker) run() {
	defer close(w.done)

	var session *client.Client
	closeSession := func() {
		if session != nil {
			session.Close() //nolint:errcheck
			session = nil
		}
	}
	defer closeSession()

	for {
		var timer *time.Timer
		var timeoutCh <-chan time.Time
		if w.idleTTL > 0 {
			timer = time.NewTimer(w.idleTTL)
			timeoutCh = timer.C
		}

		var req workerRequest
		select {
		case req = <-w.queue:
			if timer != nil {
				timer.Stop()
			}
		case <-timeoutCh:
			// Idle timeout: recycle the session to release resources, but keep
			// the goroutine (and queue) alive for the next request.
			closeSession()
			continue
		}

		if req.op == opShutdown {
			req.result <- workerResponse{}
			return
		}

		resp := w.handle(req, &session)
		req.result <- resp
	}
}

func (w *Worker) handle(req workerRequest, session **client.Client) workerResponse {
	ctx := context.Background()

	if *session == nil {
		headers, err := w.resolveHeaders(ctx)
		if err != nil {
			return workerResponse{err: err}
		}
		s, err := mcpsession.Open(ctx, w.def, headers)
		if err != nil {
			return workerResponse{err: err}
		}
		*session = s
	}

	switch req.op {
	case opListTools:
		res, err := (*session).ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			(*session).Close() //nolint:errcheck
			*session = nil
			return workerResponse{err: mcperrors.Upstream("upstream.Worker: list_tools "+w.ServerName, err)}
		}
		return workerResponse{tools: res.Tools}

	case opCallTool:
		callReq := mcp.CallToolRequest{}
		callReq.Params.Name = req.toolName
		callReq.Params.Arguments = req.args
		res, err := (*session).CallTool(ctx, callReq)
		if err != nil {
			(*session).Close() //nolint:errcheck
			*session = nil
			return workerResponse{err: mcperrors.Upstream("upstream.Worker: call_tool "+w.ServerName, err)}
		}
		return workerResponse{call: res}

	default:
		return workerResponse{err: mcperrors.Newf(mcperrors.KindDependency, "upstream.Worker.handle", "unknown worker operation")}
	}
}

func (w *Worker) resolveHeaders(ctx context.Context) (map[string]string, error) {
	if w.headers == nil {
		return nil, nil
	}
	return w.headers(ctx, w.def)
}
