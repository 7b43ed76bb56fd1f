package broker

import (
	"context"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// refreshInterval bounds how stale the published catalogue can get between
// a config edit and the broker noticing without a watch.ConfigWatcher
// trigger (e.g. when $ICA_HOME isn't watchable).
const refreshInterval = 30 * time.Second

// ServeStdio refreshes the catalogue once, then serves the MCP protocol
// over stdio until the transport closes, refreshing the catalogue
// periodically and whenever invalidate fires.
func (b *Broker) ServeStdio(ctx context.Context, invalidate <-chan struct{}) error {
	if err := b.RefreshCatalogue(ctx); err != nil {
		b.logger.Error("initial catalogue build failed", zap.Error(err))
	}

	refreshCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go b.refreshLoop(refreshCtx, invalidate)

	return mcpserver.ServeStdio(b.Server)
}

func (b *Broker) refreshLoop(ctx context.Context, invalidate <-chan struct{}) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.refreshOrLog(ctx)
		case _, ok := <-invalidate:
			if !ok {
				return
			}
			b.refreshOrLog(ctx)
		}
	}
}

func (b *Broker) refreshOrLog(ctx context.Context) {
	if err := b.RefreshCatalogue(ctx); err != nil {
		b.logger.Warn("catalogue refresh failed", zap.Error(err))
	}
}
