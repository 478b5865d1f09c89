//go:build !unix

package toolchain

import "os/exec"

func runCommand(cmd *exec.Cmd) error {
	return cmd.Run()
}
