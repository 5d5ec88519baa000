//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

// taskKiller relies on taskkill /T, which walks the tree itself.
type taskKiller struct{}

func newTreeKiller() treeKiller {
	return taskKiller{}
}

func (taskKiller) descendants(pid int) []int {
	return descendantsOf(pid)
}

func (taskKiller) terminate(pid int, _ []int) error {
	return exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T").Run()
}

func (taskKiller) kill(pid int, tree []int) error {
	err := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F").Run()
	for _, child := range tree {
		_ = exec.Command("taskkill", "/PID", strconv.Itoa(child), "/F").Run()
	}
	return err
}

func (taskKiller) alive(pid int) bool {
	return pidExists(pid)
}
