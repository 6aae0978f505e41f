// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	pidFile    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "srouter",
	Short: "srouter - software IPv4 router",
	Long: `srouter is a user-space IPv4 router. It receives Ethernet frames on a set
of interfaces, answers ARP for its own addresses, resolves next hops with ARP,
forwards IPv4 by longest-prefix match and reports failures with ICMP.

Features:
  - Static routing table (inline YAML or rtable file)
  - ARP cache with queued frames, retries and expiry
  - ICMP time exceeded, destination unreachable and echo reply
  - AF_PACKET live link or pcap replay, optional pcap tracing
  - Prometheus metrics`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/srouter/srouter.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (default: control.pid_file from config)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
}
