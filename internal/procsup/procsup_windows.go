//go:build windows

package procsup

import (
	"os/exec"
	"syscall"
)

// setDetached prevents the child from opening a console window, which would
// otherwise leave orphaned terminals behind aggressive kills.
func setDetached(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | 0x08000000, // CREATE_NO_WINDOW
	}
}

func terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
