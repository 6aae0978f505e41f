package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// ReadPIDFile returns the process ID recorded in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed PID file %s", path)
	}
	return pid, nil
}

// Signal delivers sig to the daemon whose PID is recorded in pidFile.
// SIGTERM stops the daemon; SIGHUP makes it reload its configuration.
func Signal(pidFile string, sig syscall.Signal) error {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(sig); err != nil {
		return fmt.Errorf("failed to signal daemon (pid %d): %w", pid, err)
	}
	return nil
}
