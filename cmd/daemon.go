package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/srouter/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the router in foreground",
	Long: `Run the router process in foreground.

The daemon will:
  1. Load configuration and the static routing table
  2. Initialize logging and metrics
  3. Open the configured link (afpacket or pcap)
  4. Forward frames and sweep pending ARP resolutions
  5. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	d, err := daemon.New(configFile, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Run main loop (blocks until shutdown)
	return d.Run()
}
