//go:build !linux

package numa

import "runtime"

// Discover always returns a single synthetic node on non-Linux platforms:
// sched_setaffinity-style pinning and sysfs topology enumeration are
// Linux-specific, per spec.md §4.4's portability note.
func Discover() Topology {
	return singleNodeTopology(runtime.NumCPU())
}

// pinCurrentThread is a no-op outside Linux; CPU affinity pinning is not
// attempted there.
func pinCurrentThread(cpuID int) error {
	return nil
}
