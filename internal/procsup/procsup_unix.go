//go:build !windows

package procsup

import (
	"os/exec"
	"syscall"
)

// setDetached puts the child in its own process group so a timeout kill
// reaches any descendants it forked.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminate signals the child's process group. SIGKILL is used because probe
// tools hold no state worth a graceful window, and the shutdown budget is 2 s.
func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
	return cmd.Process.Kill()
}
