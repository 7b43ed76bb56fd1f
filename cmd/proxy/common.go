package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ica-mcp/proxy/internal/logging"
	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/oauthflow"
	"github.com/ica-mcp/proxy/internal/tokenstore"
	"github.com/ica-mcp/proxy/internal/upstream"
)

// scriptFile returns the invoking binary's path, the ICA_HOME inference
// seed used throughout internal/icahome.
func scriptFile() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return exe
}

// setupLoggerFromFlags builds the broker's logger from the persistent
// --log-level/--log-to-file/--log-dir flags, defaulting the level to
// defaultLevel (the reference CLI uses info for serve, warn otherwise).
func setupLoggerFromFlags(_ *cobra.Command, defaultLevel string) (*zap.Logger, error) {
	level := viper.GetString("log-level")
	if level == "" {
		level = defaultLevel
	}

	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.EnableFile = viper.GetBool("log-to-file")
	cfg.LogDir = viper.GetString("log-dir")

	return logging.New(cfg, scriptFile())
}

// loadMergedServers loads the merged server configuration honoring the
// --config flag override (either inline JSON or a path).
func loadMergedServers(cmd *cobra.Command) (*mcpconfig.LoadedServers, error) {
	if cfg := viper.GetString("config"); cfg != "" {
		if looksLikeJSON(cfg) {
			_ = os.Setenv("MCP_CONFIG", cfg)
		} else {
			_ = os.Setenv("MCP_CONFIG_PATH", cfg)
		}
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	trustPath, err := mcpconfig.TrustPath(scriptFile())
	var trust *mcpconfig.TrustStore
	if err == nil {
		trust = mcpconfig.OpenTrustStore(trustPath)
	}

	loader := &mcpconfig.Loader{
		ScriptFile:  scriptFile(),
		ProjectRoot: projectRoot,
		Trust:       trust,
	}
	return loader.Load()
}

func looksLikeJSON(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[':
			return true
		default:
			return false
		}
	}
	return false
}

// newHeaderResolver builds an upstream.HeaderResolver that injects API-key
// or OAuth bearer headers, refreshing a cached OAuth token when it is close
// to expiry.
func newHeaderResolver(tokens *tokenstore.Store, logger *zap.Logger) upstream.HeaderResolver {
	return func(ctx context.Context, def *mcpconfig.ServerDefinition) (map[string]string, error) {
		if def.OAuth == nil {
			return oauthflow.BuildHeaders(def, ""), nil
		}

		entry, ok := tokens.Get(def.Name)
		if !ok {
			return oauthflow.BuildHeaders(def, ""), nil
		}

		refreshed, changed, err := oauthflow.MaybeRefresh(ctx, def.OAuth, entry)
		if err != nil {
			logger.Warn("oauth token refresh failed, using cached token",
				zap.String("server", def.Name), zap.Error(err))
			return oauthflow.BuildHeaders(def, entry.AccessToken), nil
		}
		if changed {
			if err := tokens.Put(def.Name, refreshed); err != nil {
				logger.Warn("failed to persist refreshed token", zap.String("server", def.Name), zap.Error(err))
			}
		}
		return oauthflow.BuildHeaders(def, refreshed.AccessToken), nil
	}
}
