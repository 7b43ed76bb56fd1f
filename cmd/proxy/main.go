// Command proxy is the ICA MCP broker: a stdio MCP server that mirrors
// upstream tools under namespaced names and brokers authenticated calls,
// plus a thin companion CLI for inspecting config/trust/token state without
// an MCP client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "v1.0.0" // injected by -ldflags during build

func main() {
	viper.SetEnvPrefix("ICA_MCP_PROXY")
	viper.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:     "proxy",
		Short:   "ICA MCP Proxy - multiplexes upstream MCP servers behind one namespaced tool catalogue",
		Version: version,
	}

	rootCmd.PersistentFlags().String("config", "", "Inline JSON config or path, overriding MCP_CONFIG/MCP_CONFIG_PATH")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-to-file", false, "Enable rotating file logging under $ICA_HOME/logs")
	rootCmd.PersistentFlags().String("log-dir", "", "Override the log directory")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-to-file", rootCmd.PersistentFlags().Lookup("log-to-file"))
	_ = viper.BindPFlag("log-dir", rootCmd.PersistentFlags().Lookup("log-dir"))

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newServersCommand())
	rootCmd.AddCommand(newTrustCommand())
	rootCmd.AddCommand(newTrustStatusCommand())
	rootCmd.AddCommand(newUntrustCommand())
	rootCmd.AddCommand(newMirrorStatusCommand())
	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newLogoutCommand())

	rootCmd.RunE = runServe

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
