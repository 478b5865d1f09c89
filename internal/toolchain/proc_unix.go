//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// runCommand runs cmd in its own process group so that cancelling the
// stage kills the whole tree spawned by the build tool.
func runCommand(cmd *exec.Cmd) error {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	if cmd.Cancel != nil {
		cmd.Cancel = func() error {
			return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
	}
	return cmd.Run()
}
