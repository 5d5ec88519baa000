//go:build unix

package process

import (
	"errors"
	"syscall"
)

// groupKiller signals the process group led by pid plus any descendant that
// left the group (setsid, double fork).
type groupKiller struct{}

func newTreeKiller() treeKiller {
	return groupKiller{}
}

func (groupKiller) descendants(pid int) []int {
	return descendantsOf(pid)
}

func (groupKiller) terminate(pid int, tree []int) error {
	return signalTree(pid, tree, syscall.SIGTERM)
}

func (groupKiller) kill(pid int, tree []int) error {
	return signalTree(pid, tree, syscall.SIGKILL)
}

func (groupKiller) alive(pid int) bool {
	return pidExists(pid)
}

func signalTree(pid int, tree []int, sig syscall.Signal) error {
	// Negative pid targets the whole group; the shell leads it via Setpgid.
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = nil
	}
	for _, child := range tree {
		_ = syscall.Kill(child, sig)
	}
	return err
}
