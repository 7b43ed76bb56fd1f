package oauthflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ica-mcp/proxy/internal/mcperrors"
)

// callbackResult is what the loopback listener captured from the redirect.
type callbackResult struct {
	Code  string
	State string
	Err   string
}

// callbackServer is a single-shot loopback HTTP listener that captures the
// authorization code (or error) from the browser redirect, then serves one
// final human-readable page before shutting itself down.
type callbackServer struct {
	listener net.Listener
	server   *http.Server
	resultCh chan callbackResult
	once     sync.Once
}

func newCallbackServer() (*callbackServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, mcperrors.Dependency("oauthflow.newCallbackServer", err)
	}
	cs := &callbackServer{
		listener: listener,
		resultCh: make(chan callbackResult, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", cs.handle)
	cs.server = &http.Server{Handler: mux}
	return cs, nil
}

// RedirectURI is the loopback URL to register as this attempt's redirect_uri.
func (cs *callbackServer) RedirectURI() string {
	return fmt.Sprintf("http://%s/callback", cs.listener.Addr().String())
}

func (cs *callbackServer) Start() {
	go cs.server.Serve(cs.listener) //nolint:errcheck // shutdown always returns ErrServerClosed
}

func (cs *callbackServer) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	q := r.URL.Query()
	result := callbackResult{
		Code:  q.Get("code"),
		State: q.Get("state"),
		Err:   q.Get("error"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.Err != "" {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<html><body><h3>Authorization failed</h3><p>%s</p><p>You may close this tab.</p></body></html>", result.Err) //nolint:errcheck
	} else {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "<html><body><h3>Authorization complete</h3><p>You may close this tab and return to the terminal.</p></body></html>") //nolint:errcheck
	}

	cs.once.Do(func() {
		cs.resultCh <- result
	})
}

// Wait blocks until the redirect is captured or ctx is done, then shuts the
// listener down unconditionally.
func (cs *callbackServer) Wait(ctx context.Context) (callbackResult, error) {
	defer cs.shutdown()
	select {
	case result := <-cs.resultCh:
		return result, nil
	case <-ctx.Done():
		return callbackResult{}, mcperrors.Timeout("oauthflow.callbackServer.Wait", ctx.Err())
	}
}

func (cs *callbackServer) shutdown() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := cs.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cs.server.Close() //nolint:errcheck
	}
}
