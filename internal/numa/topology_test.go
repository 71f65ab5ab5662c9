package numa

import "testing"

func twoNodeTopology() Topology {
	return Topology{
		Enabled: true,
		Nodes: []Node{
			{ID: 0, CPUIDs: []int{0, 1, 2, 3}},
			{ID: 1, CPUIDs: []int{4, 5, 6, 7}},
		},
	}
}

func TestAssignRoundRobinAcrossNodes(t *testing.T) {
	a := Assign(twoNodeTopology(), 6)

	want := []int{0, 1, 0, 1, 0, 1}
	for i, node := range a.ThreadToNode {
		if node != want[i] {
			t.Fatalf("thread %d: got node %d, want %d", i, node, want[i])
		}
	}
}

func TestAssignCyclesCPUsWithinNode(t *testing.T) {
	a := Assign(twoNodeTopology(), 10)

	// threads 0,2,4,6,8 land on node 0's four CPUs, cycling.
	wantCPUs := []int{0, 1, 2, 3, 0}
	idx := 0
	for i, node := range a.ThreadToNode {
		if node != 0 {
			continue
		}
		if a.ThreadToCPU[i] != wantCPUs[idx] {
			t.Errorf("node-0 occurrence %d (thread %d): got cpu %d, want %d", idx, i, a.ThreadToCPU[i], wantCPUs[idx])
		}
		idx++
	}
}

func TestAssignRankWithinNode(t *testing.T) {
	a := Assign(twoNodeTopology(), 6)

	// threads 0,2,4 are node 0's 1st,2nd,3rd workers.
	wantRank := []int{0, 0, 1, 1, 2, 2}
	for i := range a.ThreadToNode {
		if a.RankWithinNode(i) != wantRank[i] {
			t.Errorf("thread %d: got rank %d, want %d", i, a.RankWithinNode(i), wantRank[i])
		}
	}
}

func TestAssignSingleNodeFallback(t *testing.T) {
	topo := singleNodeTopology(4)
	if topo.Enabled {
		t.Fatal("synthetic single-node topology must report Enabled=false")
	}
	a := Assign(topo, 8)
	for i, node := range a.ThreadToNode {
		if node != 0 {
			t.Fatalf("thread %d: expected single node 0, got %d", i, node)
		}
	}
	for i, cpu := range a.ThreadToCPU {
		if cpu != i%4 {
			t.Fatalf("thread %d: got cpu %d, want %d", i, cpu, i%4)
		}
	}
}

func TestWorkersPerNode(t *testing.T) {
	a := Assign(twoNodeTopology(), 5)
	counts := a.WorkersPerNode()
	if counts[0] != 3 || counts[1] != 2 {
		t.Fatalf("got counts %v, want node0=3 node1=2", counts)
	}
}

func TestAssignEmptyNodeCPUsYieldsNegativeOne(t *testing.T) {
	topo := Topology{Nodes: []Node{{ID: 0, CPUIDs: nil}}}
	a := Assign(topo, 2)
	for i, cpu := range a.ThreadToCPU {
		if cpu != -1 {
			t.Fatalf("thread %d: got cpu %d, want -1 for empty node", i, cpu)
		}
	}
}
