//go:build !windows

package services

import (
	"os/exec"
	"syscall"
)

// setProcessGroup makes cancellation kill the whole process group, so
// helpers spawned by soffice or pdflatex do not outlive the timeout.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Best-effort; the direct child is killed by exec regardless.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		return nil
	}
}
