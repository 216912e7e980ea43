// dccctl is the command line companion of the dcc-pilot service: it
// drives the service's HTTP API from scripts or an interactive shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "dccctl",
	Short: "Control a dcc-pilot model railway service",
	Long: `dccctl - A CLI tool for driving a dcc-pilot service.

Provides commands to move locomotives, stop traffic, switch onboard
devices and accessories, and inspect the service status.

The service address comes from --server, from the DCCCTL_SERVER
environment variable, or from the client configuration file
(~/.config/dccctl/config.yaml).`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "dcc-pilot service URL (default http://localhost:8090)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Client configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
