//go:build unix

package process

import (
	"os/exec"
	"syscall"

	"mvdan.cc/sh/v3/syntax"
)

const defaultShell = "/bin/sh"

// shellCommand runs line under sh in a new process group.
func shellCommand(shell, line string) *exec.Cmd {
	cmd := exec.Command(shell, "-c", line)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return cmd
}

func quoteArg(arg string) (string, error) {
	return syntax.Quote(arg, syntax.LangPOSIX)
}
