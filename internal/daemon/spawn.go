package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Spawn starts the server as a detached subprocess running the same binary
// with the "serve" subcommand.
func Spawn(configFile string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	args := []string{"serve", "--log-file"}
	if configFile != "" {
		args = append(args, "--config", configFile)
	}
	cmd := exec.Command(exe, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	cmd.Process.Release()
	return nil
}
