package cmd

import (
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/srouter/internal/config"
	"firestige.xyz/srouter/internal/daemon"
)

// Signaler delivers a signal to the daemon recorded in a PID file.
type Signaler interface {
	Signal(pidFile string, sig syscall.Signal) error
}

type pidSignaler struct{}

func (pidSignaler) Signal(pidFile string, sig syscall.Signal) error {
	return daemon.Signal(pidFile, sig)
}

var signaler Signaler = pidSignaler{}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Stop the running daemon gracefully by sending SIGTERM to the process
recorded in the PID file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(signaler, resolvePIDFile(), cmd.OutOrStdout())
	},
}

func runStop(s Signaler, pidFile string, out io.Writer) error {
	if err := s.Signal(pidFile, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Stop signal sent")
	return nil
}

// resolvePIDFile prefers --pidfile, then control.pid_file from the config.
func resolvePIDFile() string {
	if pidFile != "" {
		return pidFile
	}
	if cfg, err := config.Load(configFile); err == nil {
		return cfg.Control.PIDFile
	}
	return "/var/run/srouter.pid"
}
