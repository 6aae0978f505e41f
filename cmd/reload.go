package cmd

import (
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Long: `Send SIGHUP to the running daemon. Log settings are applied immediately;
interface, route, ARP and link changes are reported and need a restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(signaler, resolvePIDFile(), cmd.OutOrStdout())
	},
}

func runReload(s Signaler, pidFile string, out io.Writer) error {
	if err := s.Signal(pidFile, syscall.SIGHUP); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Reload signal sent")
	return nil
}
