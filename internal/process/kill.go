package process

import (
	gops "github.com/shirou/gopsutil/v4/process"
)

// treeKiller signals a process and everything it spawned.
type treeKiller interface {
	// descendants lists every live descendant of pid.
	descendants(pid int) []int
	// terminate asks the tree to exit.
	terminate(pid int, tree []int) error
	// kill sends a signal the tree cannot ignore.
	kill(pid int, tree []int) error
	// alive reports whether pid still exists.
	alive(pid int) bool
}

// descendantsOf walks the process table below pid.
// Descendants must be captured before the parent is signalled: once it
// dies they are reparented and can no longer be found from it.
func descendantsOf(pid int) []int {
	root, err := gops.NewProcess(int32(pid))
	if err != nil {
		return nil
	}

	var out []int
	queue := []*gops.Process{root}
	seen := map[int32]bool{root.Pid: true}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		children, err := current.Children()
		if err != nil {
			continue
		}
		for _, child := range children {
			if seen[child.Pid] {
				continue
			}
			seen[child.Pid] = true
			out = append(out, int(child.Pid))
			queue = append(queue, child)
		}
	}
	return out
}

func pidExists(pid int) bool {
	exists, err := gops.PidExists(int32(pid))
	return err == nil && exists
}

// mergePIDs returns the union of a and b, keeping a's order.
func mergePIDs(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, pid := range list {
			if !seen[pid] {
				seen[pid] = true
				out = append(out, pid)
			}
		}
	}
	return out
}
