package randomx

import (
	"testing"

	"github.com/zecrx/randomx-miner/internal/numa"
)

func flatTopology() numa.Topology {
	return numa.Topology{Nodes: []numa.Node{{ID: 0, CPUIDs: []int{0, 1, 2, 3}}}}
}

func twoNodeTopology() numa.Topology {
	return numa.Topology{
		Enabled: true,
		Nodes: []numa.Node{
			{ID: 0, CPUIDs: []int{0, 1}},
			{ID: 1, CPUIDs: []int{2, 3}},
		},
	}
}

// TestSelectMode exercises the mode decision table of spec.md §4.3.
func TestSelectMode(t *testing.T) {
	if got := SelectMode(true, twoNodeTopology()); got != ModeFastFlat {
		t.Errorf("fast mode should always select ModeFastFlat, got %v", got)
	}
	if got := SelectMode(false, twoNodeTopology()); got != ModeLightNuma {
		t.Errorf("light mode with NUMA should select ModeLightNuma, got %v", got)
	}
	if got := SelectMode(false, flatTopology()); got != ModeLightFlat {
		t.Errorf("light mode without NUMA should select ModeLightFlat, got %v", got)
	}
}

// Without the randomx build tag, every Cache/VM/Dataset operation returns
// ErrUnavailable; Init must surface that failure rather than reporting
// success, and must leave the pool released (not initialized).
func TestPoolInitSurfacesUnavailableInStubBuild(t *testing.T) {
	p := NewPool(ModeLightFlat, 4, flatTopology())
	var seed [KeySize]byte

	err := p.Init(seed)
	if err == nil {
		t.Fatal("expected Init to fail in the no-cgo stub build")
	}
	if p.IsInitialized() {
		t.Fatal("pool must not report initialized after a failed Init")
	}
}

func TestPoolInitTwiceRejected(t *testing.T) {
	p := NewPool(ModeLightFlat, 2, flatTopology())
	var seed [KeySize]byte
	_ = p.Init(seed) // fails in stub build, pool stays released

	p.mu.Lock()
	p.initialized = true // force the state to exercise the guard directly
	p.mu.Unlock()

	if err := p.Init(seed); err != ErrAlreadyInitialized {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestVMForThreadRejectsUninitialized(t *testing.T) {
	p := NewPool(ModeLightFlat, 4, flatTopology())
	if _, err := p.VMForThread(0); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestVMForThreadRejectsOutOfRange(t *testing.T) {
	p := NewPool(ModeLightFlat, 4, flatTopology())
	p.mu.Lock()
	p.initialized = true
	p.flatVMs = make([]*VM, 4)
	p.mu.Unlock()

	if _, err := p.VMForThread(4); err != ErrThreadOutOfRange {
		t.Fatalf("expected ErrThreadOutOfRange, got %v", err)
	}
	if _, err := p.VMForThread(-1); err != ErrThreadOutOfRange {
		t.Fatalf("expected ErrThreadOutOfRange, got %v", err)
	}
}

// TestCPUForThreadMatchesAssignment exercises the §4.4 assignment table
// indirectly via the pool's stored Assignment.
func TestCPUForThreadMatchesAssignment(t *testing.T) {
	p := NewPool(ModeLightNuma, 4, twoNodeTopology())
	want := []int{0, 2, 1, 3}
	for i, cpu := range want {
		if got := p.CPUForThread(i); got != cpu {
			t.Errorf("thread %d: got cpu %d, want %d", i, got, cpu)
		}
	}
}

// TestUpdateSeedNoopWhenUnchanged exercises the seed-update no-op branch of
// spec.md §4.3 without touching the CGO boundary at all.
func TestUpdateSeedNoopWhenUnchanged(t *testing.T) {
	p := NewPool(ModeLightFlat, 2, flatTopology())
	p.mu.Lock()
	p.initialized = true
	p.currentSeed = [KeySize]byte{1, 2, 3}
	p.mu.Unlock()

	if err := p.UpdateSeed([KeySize]byte{1, 2, 3}, nil); err != nil {
		t.Fatalf("no-op seed update should succeed, got %v", err)
	}
}

func TestUpdateSeedRejectsUninitialized(t *testing.T) {
	p := NewPool(ModeLightFlat, 2, flatTopology())
	if err := p.UpdateSeed([KeySize]byte{1}, nil); err != ErrNotInitialized {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

type fakeGuard struct {
	running bool
	stopped bool
}

func (g *fakeGuard) IsRunning() bool { return g.running }
func (g *fakeGuard) Stop()           { g.running = false; g.stopped = true }

// TestSetThreadCountStopsRunningSession exercises the "stop any running
// session" precondition of spec.md §4.3's thread-count change.
func TestSetThreadCountStopsRunningSession(t *testing.T) {
	p := NewPool(ModeLightFlat, 2, flatTopology())
	guard := &fakeGuard{running: true}

	_ = p.SetThreadCount(4, guard) // fails at init in stub build, that's fine

	if !guard.stopped {
		t.Fatal("SetThreadCount must stop a running session before mutating the pool")
	}
	if p.NumThreads() != 4 {
		t.Fatalf("got numThreads=%d, want 4 (recorded even though init failed)", p.NumThreads())
	}
}

func TestSeedHeightBoundary(t *testing.T) {
	cases := []struct {
		h    uint64
		want uint64
	}{
		{0, 0},
		{2048 + 96, 0},
		{2048 + 97, 2048},
		{4096 + 96, 2048},
		{4096 + 97, 4096},
	}
	for _, c := range cases {
		if got := SeedHeight(c.h); got != c.want {
			t.Errorf("SeedHeight(%d) = %d, want %d", c.h, got, c.want)
		}
	}
}
