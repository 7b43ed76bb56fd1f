package main

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ica-mcp/proxy/internal/cliutil"
	"github.com/ica-mcp/proxy/internal/mcpconfig"
	"github.com/ica-mcp/proxy/internal/tokenstore"
)

// newServersCommand ports `mcp_proxy_cli.py servers`: print the merged
// server set, its sources, and whether strict trust is enforced.
func newServersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "servers",
		Short: "List the merged upstream server configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := setupLoggerFromFlags(cmd, "warn")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			loaded, err := loadMergedServers(cmd)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(loaded.Servers))
			for n := range loaded.Servers {
				names = append(names, n)
			}
			sort.Strings(names)

			return cliutil.PrintJSON(os.Stdout, map[string]any{
				"servers":         names,
				"sources":         loaded.Sources,
				"blocked_servers": loaded.BlockedServers,
				"strict_trust":    envTruthy("ICA_MCP_STRICT_TRUST"),
			})
		},
	}
}

// newMirrorStatusCommand ports `mcp_proxy_cli.py mirror-status`: a static
// preview only, since live mirror details require proxy.mirror_status from
// an actual MCP client session against a running broker.
func newMirrorStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mirror-status",
		Short: "Preview the configured servers that would be mirrored",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := setupLoggerFromFlags(cmd, "warn")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			loaded, err := loadMergedServers(cmd)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(loaded.Servers))
			for n := range loaded.Servers {
				names = append(names, n)
			}
			sort.Strings(names)

			return cliutil.PrintJSON(os.Stdout, map[string]any{
				"note":               "Static preview only. Use proxy.mirror_status from an MCP client for runtime mirror details.",
				"servers_configured": names,
				"blocked_servers":    loaded.BlockedServers,
			})
		},
	}
}

func projectArg(args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}
	return os.Getwd()
}

func newTrustCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trust [path]",
		Short: "Trust a project's .mcp.json at its current content hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectArg(args)
			if err != nil {
				return err
			}
			trustPath, err := mcpconfig.TrustPath(scriptFile())
			if err != nil {
				return err
			}
			store := mcpconfig.OpenTrustStore(trustPath)

			content, err := os.ReadFile(mcpconfig.ProjectConfigPath(project))
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			if err := store.TrustProject(project, content); err != nil {
				return err
			}
			return cliutil.PrintJSON(os.Stdout, map[string]any{
				"project":     project,
				"status":      "trusted",
				"trust_store": trustPath,
			})
		},
	}
}

func newTrustStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trust-status [path]",
		Short: "Show whether a project is currently trusted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectArg(args)
			if err != nil {
				return err
			}
			trustPath, err := mcpconfig.TrustPath(scriptFile())
			if err != nil {
				return err
			}
			store := mcpconfig.OpenTrustStore(trustPath)

			content, err := os.ReadFile(mcpconfig.ProjectConfigPath(project))
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			status, err := store.Status(project, content)
			if err != nil {
				return err
			}
			return cliutil.PrintJSON(os.Stdout, map[string]any{
				"project":     project,
				"trusted":     status.Trusted,
				"content_hit": status.ContentHit,
				"trusted_at":  status.Entry.TrustedAt,
				"trust_store": trustPath,
			})
		},
	}
}

func newUntrustCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "untrust [path]",
		Short: "Remove a project's trust record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := projectArg(args)
			if err != nil {
				return err
			}
			trustPath, err := mcpconfig.TrustPath(scriptFile())
			if err != nil {
				return err
			}
			store := mcpconfig.OpenTrustStore(trustPath)

			before, _ := store.Status(project, nil)
			if err := store.UntrustProject(project); err != nil {
				return err
			}
			status := "missing"
			if before.Trusted || !before.Entry.TrustedAt.IsZero() {
				status = "removed"
			}
			return cliutil.PrintJSON(os.Stdout, map[string]any{
				"project":     project,
				"status":      status,
				"trust_store": trustPath,
			})
		},
	}
}

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <server>",
		Short: "Show the cached OAuth token state for a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := args[0]
			path, err := tokenstore.Path(scriptFile())
			if err != nil {
				return err
			}
			store := tokenstore.Open(path)

			entry, ok := store.Get(server)
			if !ok {
				return cliutil.PrintJSON(os.Stdout, map[string]any{"server": server, "status": "missing"})
			}
			return cliutil.PrintJSON(os.Stdout, map[string]any{
				"server":     server,
				"status":     "present",
				"expired":    entry.Expired(time.Now()),
				"expires_at": entry.ExpiresAt,
				"scope":      entry.Scope,
				"token_type": entry.TokenType,
				"grant_type": entry.GrantType,
			})
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <server>",
		Short: "Delete the cached OAuth token for a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := args[0]
			path, err := tokenstore.Path(scriptFile())
			if err != nil {
				return err
			}
			store := tokenstore.Open(path)

			_, existed := store.Get(server)
			if err := store.Delete(server); err != nil {
				return err
			}
			status := "missing"
			if existed {
				status = "deleted"
			}
			return cliutil.PrintJSON(os.Stdout, map[string]any{"server": server, "status": status})
		},
	}
}

func envTruthy(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes", "YES", "on", "ON":
		return true
	default:
		return false
	}
}
