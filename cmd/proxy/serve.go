package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ica-mcp/proxy/internal/broker"
	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/metrics"
	"github.com/ica-mcp/proxy/internal/mirror"
	"github.com/ica-mcp/proxy/internal/tokenstore"
	"github.com/ica-mcp/proxy/internal/upstream"
	"github.com/ica-mcp/proxy/internal/watch"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP broker over stdio",
		Long:  "Start the ICA MCP broker, mirroring upstream MCP servers under namespaced tool names over the stdio transport.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger, err := setupLoggerFromFlags(cmd, "info")
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting ica-mcp-proxy", zap.String("version", version))

	tokenPath, err := tokenstore.Path(scriptFile())
	if err != nil {
		return fmt.Errorf("resolve token store path: %w", err)
	}
	tokens := tokenstore.Open(tokenPath)

	caps := mirror.CapsFromEnv()
	upstreamMgr := upstream.NewManager(caps.UpstreamIdleTTL, caps.UpstreamReqTimeout, caps.EffectivePoolStdio(), newHeaderResolver(tokens, logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer upstreamMgr.Shutdown(context.Background())

	builder := mirror.NewBuilder(func() (*mcpconfig.LoadedServers, error) {
		return loadMergedServers(cmd)
	}, upstreamMgr, caps)

	metricsReg := metrics.New()
	b := broker.New(builder, upstreamMgr, tokens, logger, metricsReg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	invalidate := make(chan struct{}, 1)
	watcher, err := newConfigWatcher(logger, func() {
		select {
		case invalidate <- struct{}{}:
		default:
		}
	})
	if err != nil {
		logger.Warn("config watcher setup failed, relying on TTL refresh only", zap.Error(err))
	} else {
		go watcher.Run(ctx)
		defer func() { _ = watcher.Close() }()
	}

	if addr := os.Getenv("ICA_MCP_PROXY_METRICS_ADDR"); addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsReg.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("metrics listener enabled", zap.String("addr", addr))
	}

	err = b.ServeStdio(ctx, invalidate)
	b.Shutdown(context.Background())
	return err
}

// newConfigWatcher watches the trust store and the current project's
// .mcp.json so edits invalidate the mirror cache immediately rather than
// waiting out the TTL.
func newConfigWatcher(logger *zap.Logger, onChange func()) (*watch.ConfigWatcher, error) {
	var paths []string
	if trustPath, err := mcpconfig.TrustPath(scriptFile()); err == nil {
		paths = append(paths, trustPath)
	}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, mcpconfig.ProjectConfigPath(wd))
	}
	return watch.New(logger, onChange, paths...)
}
