package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kBridge/cmd/bridge"
	"github.com/ValentinKolb/kBridge/cmd/serve"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kbridge",
		Short: "bridge between constrained callers and a key store, crypto provider and certificate authority",
		Long: fmt.Sprintf(`kBridge (v%s)

A backend that answers framed binary commands over a local link. It keeps
keys in a bounded permanent and temporary table, runs cryptographic
operations and issues, verifies and revokes certificates.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kBridge",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kBridge v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(bridge.StoreCommands)
	RootCmd.AddCommand(bridge.CryptoCommands)
	RootCmd.AddCommand(bridge.CertCommands)
	RootCmd.AddCommand(bridge.PingCmd)
	RootCmd.AddCommand(bridge.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
