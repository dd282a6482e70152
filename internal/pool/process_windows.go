//go:build windows

package pool

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {}

// signalProcessGroup on Windows has no SIGTERM/process-group equivalent
// reachable without additional syscalls, so every signal but SIGKILL is a
// no-op; callers fall back to Kill, which terminates the worker process.
func signalProcessGroup(pid int, sig syscall.Signal) error {
	if sig != syscall.SIGKILL {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
