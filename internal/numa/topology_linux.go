//go:build linux

package numa

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const sysfsNodeDir = "/sys/devices/system/node"

// Discover reads /sys/devices/system/node to build the host's NUMA
// topology, per spec.md §4.4. Any read failure, or discovery of fewer than
// two nodes, falls back to a single synthetic node spanning every CPU —
// the miner runs correctly, just without NUMA-local placement.
func Discover() Topology {
	entries, err := os.ReadDir(sysfsNodeDir)
	if err != nil {
		return singleNodeTopology(runtime.NumCPU())
	}

	var nodes []Node
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		cpus, err := readNodeCPUList(filepath.Join(sysfsNodeDir, name, "cpulist"))
		if err != nil || len(cpus) == 0 {
			continue
		}
		nodes = append(nodes, Node{ID: id, CPUIDs: cpus})
	}

	if len(nodes) < 2 {
		return singleNodeTopology(runtime.NumCPU())
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return Topology{Nodes: nodes, Enabled: true}
}

// readNodeCPUList parses a sysfs cpulist file, e.g. "0-3,8,10-11".
func readNodeCPUList(path string) ([]int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}

	var cpus []int
	for _, part := range strings.Split(text, ",") {
		if part == "" {
			continue
		}
		if dash := strings.IndexByte(part, '-'); dash >= 0 {
			lo, err := strconv.Atoi(part[:dash])
			if err != nil {
				continue
			}
			hi, err := strconv.Atoi(part[dash+1:])
			if err != nil {
				continue
			}
			for c := lo; c <= hi; c++ {
				cpus = append(cpus, c)
			}
		} else {
			c, err := strconv.Atoi(part)
			if err != nil {
				continue
			}
			cpus = append(cpus, c)
		}
	}
	return cpus, nil
}

// pinCurrentThread sets the CPU affinity mask of the calling OS thread to
// the single given CPU, via sched_setaffinity. The caller must have already
// called runtime.LockOSThread.
func pinCurrentThread(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}
