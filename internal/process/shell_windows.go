//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

const defaultShell = "cmd.exe"

func shellCommand(shell, line string) *exec.Cmd {
	return exec.Command(shell, "/C", line)
}

func quoteArg(arg string) (string, error) {
	return syscall.EscapeArg(arg), nil
}
