// Package numa discovers NUMA node/CPU topology and computes the
// round-robin worker-to-node and worker-to-CPU assignment the mining
// engine uses for memory-local hashing, per spec.md §4.4.
package numa

import "log/slog"

// Node describes one NUMA node: its id and the CPU ids it owns.
type Node struct {
	ID     int
	CPUIDs []int
}

// Topology is the discovered (or synthesized) NUMA layout of the host.
type Topology struct {
	Nodes   []Node
	Enabled bool // false when the platform has < 2 configured nodes
}

// singleNodeTopology builds the Topology used when NUMA discovery is
// unavailable or reports fewer than two nodes: one logical node containing
// every CPU id in [0, numCPU), per spec.md §4.4's discovery fallback.
func singleNodeTopology(numCPU int) Topology {
	cpus := make([]int, numCPU)
	for i := range cpus {
		cpus[i] = i
	}
	return Topology{
		Nodes:   []Node{{ID: 0, CPUIDs: cpus}},
		Enabled: false,
	}
}

// Assignment holds the parallel per-thread tables spec.md §4.4 describes.
type Assignment struct {
	ThreadToNode []int
	ThreadToCPU  []int
	// rankWithinNode[i] is the count of threads j < i assigned to the same
	// node as thread i; it is the index into a node's own VM slice.
	rankWithinNode []int
}

// RankWithinNode returns the count of threads before i assigned to the same
// node as i, used by the NUMA-aware VM lookup (§4.4).
func (a Assignment) RankWithinNode(i int) int {
	return a.rankWithinNode[i]
}

// Assign computes the deterministic round-robin placement of numThreads
// workers across topo's nodes, per spec.md §4.4:
//
//	thread_to_node[i] = i mod node_count
//	within each node, a rolling counter picks node.cpu_ids[k mod len]
func Assign(topo Topology, numThreads int) Assignment {
	nodeCount := len(topo.Nodes)
	if nodeCount == 0 {
		nodeCount = 1
	}

	a := Assignment{
		ThreadToNode:   make([]int, numThreads),
		ThreadToCPU:    make([]int, numThreads),
		rankWithinNode: make([]int, numThreads),
	}

	nodeCounters := make(map[int]int, nodeCount)
	rankCounters := make(map[int]int, nodeCount)

	for i := 0; i < numThreads; i++ {
		nodeIdx := i % nodeCount
		node := topo.Nodes[nodeIdx]
		a.ThreadToNode[i] = node.ID

		if len(node.CPUIDs) > 0 {
			k := nodeCounters[node.ID]
			a.ThreadToCPU[i] = node.CPUIDs[k%len(node.CPUIDs)]
			nodeCounters[node.ID] = k + 1
		} else {
			a.ThreadToCPU[i] = -1
		}

		a.rankWithinNode[i] = rankCounters[node.ID]
		rankCounters[node.ID] = rankCounters[node.ID] + 1
	}

	return a
}

// WorkersPerNode returns, for each node id present in the assignment, how
// many worker threads were placed on it.
func (a Assignment) WorkersPerNode() map[int]int {
	counts := make(map[int]int)
	for _, node := range a.ThreadToNode {
		counts[node]++
	}
	return counts
}

// PinCurrentThread attempts to pin the calling OS thread to cpuID. Failure
// is non-fatal and only logged, per spec.md §4.4 "Affinity application":
// the caller continues unpinned.
func PinCurrentThread(logger *slog.Logger, cpuID int) {
	if cpuID < 0 {
		return
	}
	if err := pinCurrentThread(cpuID); err != nil {
		if logger != nil {
			logger.Warn("failed to pin worker to CPU", "cpu", cpuID, "error", err)
		}
	}
}
