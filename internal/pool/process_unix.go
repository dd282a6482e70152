//go:build !windows

package pool

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the worker in its own process group so the pool
// can signal the whole group (the embedding runtime may itself fork
// helpers), mirroring the pattern used for language-server subprocesses.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalProcessGroup(pid int, sig syscall.Signal) error {
	return syscall.Kill(-pid, sig)
}
