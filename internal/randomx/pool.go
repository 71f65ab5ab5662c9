package randomx

import (
	"errors"
	"runtime"
	"sync"

	"github.com/zecrx/randomx-miner/internal/numa"
)

// Mode selects which of the three initialization strategies a Pool uses,
// per spec.md §4.3/§9's "single trait-like abstraction" design note.
type Mode int

const (
	// ModeLightFlat: one shared cache, one VM per worker, no NUMA tables.
	ModeLightFlat Mode = iota
	// ModeLightNuma: one cache per NUMA node, VMs grouped per node.
	ModeLightNuma
	// ModeFastFlat: one shared ~2GB dataset, one VM per worker bound to it.
	ModeFastFlat
)

var (
	// ErrAlreadyInitialized is returned by Init when the pool already holds
	// allocated resources.
	ErrAlreadyInitialized = errors.New("randomx: pool already initialized")
	// ErrNotInitialized is returned by operations that require an
	// initialized pool.
	ErrNotInitialized = errors.New("randomx: pool not initialized")
	// ErrSessionRunning reports an attempt to mutate the pool while a
	// session is running. Pool's own methods do not return it: UpdateSeed
	// and SetThreadCount stop a running session through their SessionGuard,
	// and Init does not check for one.
	ErrSessionRunning = errors.New("randomx: cannot mutate pool while a session is running")
	// ErrThreadOutOfRange is returned by VMForThread for an invalid index.
	ErrThreadOutOfRange = errors.New("randomx: thread index out of range")
)

// SessionGuard lets the Pool ask its owner whether a mining session is
// currently running, and to stop it, before any pool mutation — per
// spec.md §4.3's "if a mining session is running: stop it first" and the
// invariant that "the VmPool is mutated only outside of sessions."
type SessionGuard interface {
	IsRunning() bool
	Stop()
}

// nodeState holds one NUMA node's cache and the VMs assigned to it, used by
// ModeLightNuma.
type nodeState struct {
	nodeID int
	cache  *Cache
	vms    []*VM
}

// Pool is the C3 RandomX State Manager: it owns cache/dataset/VM lifecycles
// for a fixed worker count and hands out per-thread VM handles via the
// NUMA-aware lookup of spec.md §4.4. The zero value is not usable; build one
// with NewPool.
type Pool struct {
	mu sync.RWMutex

	mode       Mode
	numThreads int
	topo       numa.Topology
	assignment numa.Assignment

	initialized bool
	currentSeed [KeySize]byte

	// ModeLightFlat / ModeFastFlat
	sharedCache *Cache
	dataset     *Dataset
	flatVMs     []*VM

	// ModeLightNuma
	nodes map[int]*nodeState
}

// NewPool constructs a Pool for numThreads workers in the given mode. It
// performs no allocation; call Init to acquire resources.
func NewPool(mode Mode, numThreads int, topo numa.Topology) *Pool {
	return &Pool{
		mode:       mode,
		numThreads: numThreads,
		topo:       topo,
		assignment: numa.Assign(topo, numThreads),
	}
}

// SelectMode picks ModeFastFlat, ModeLightNuma, or ModeLightFlat from the
// runtime configuration, per spec.md §4.3 steps 3-5.
func SelectMode(fastMode bool, topo numa.Topology) Mode {
	switch {
	case fastMode:
		return ModeFastFlat
	case topo.Enabled:
		return ModeLightNuma
	default:
		return ModeLightFlat
	}
}

// IsInitialized reports whether the pool currently holds allocated
// resources.
func (p *Pool) IsInitialized() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.initialized
}

// CurrentSeed returns the seed the pool is currently keyed with. The
// returned value is meaningless if IsInitialized is false.
func (p *Pool) CurrentSeed() [KeySize]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentSeed
}

// Init performs the full initialization sequence of spec.md §4.3 for the
// pool's configured mode. It fails if the pool is already initialized.
func (p *Pool) Init(seed [KeySize]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return ErrAlreadyInitialized
	}
	return p.initLocked(seed)
}

func (p *Pool) initLocked(seed [KeySize]byte) (err error) {
	flags := SelectFlags(p.mode == ModeFastFlat)

	defer func() {
		if err != nil {
			p.releaseLocked()
		}
	}()

	switch p.mode {
	case ModeFastFlat:
		err = p.initFastFlatLocked(flags, seed)
	case ModeLightNuma:
		err = p.initLightNumaLocked(flags, seed)
	default:
		err = p.initLightFlatLocked(flags, seed)
	}
	if err != nil {
		return err
	}

	p.currentSeed = seed
	p.initialized = true
	return nil
}

func (p *Pool) initLightFlatLocked(flags Flag, seed [KeySize]byte) error {
	cache, err := AllocCache(flags)
	if err != nil {
		return err
	}
	if err := cache.Init(seed[:]); err != nil {
		return err
	}
	p.sharedCache = cache

	vms := make([]*VM, p.numThreads)
	for i := range vms {
		vm, err := CreateVM(flags, cache, nil)
		if err != nil {
			return err
		}
		vms[i] = vm
	}
	p.flatVMs = vms
	return nil
}

func (p *Pool) initFastFlatLocked(flags Flag, seed [KeySize]byte) error {
	cache, err := AllocCache(flags)
	if err != nil {
		return err
	}
	if err := cache.Init(seed[:]); err != nil {
		return err
	}
	p.sharedCache = cache

	dataset, err := AllocDataset(flags)
	if err != nil {
		return err
	}
	p.dataset = dataset
	initDatasetParallel(dataset, cache, p.numThreads)

	vms := make([]*VM, p.numThreads)
	for i := range vms {
		vm, err := CreateVM(flags, cache, dataset)
		if err != nil {
			return err
		}
		vms[i] = vm
	}
	p.flatVMs = vms
	return nil
}

func (p *Pool) initLightNumaLocked(flags Flag, seed [KeySize]byte) error {
	workersPerNode := p.assignment.WorkersPerNode()
	nodes := make(map[int]*nodeState, len(workersPerNode))

	for _, node := range p.topo.Nodes {
		n := workersPerNode[node.ID]
		if n == 0 {
			continue
		}
		cache, err := AllocCache(flags)
		if err != nil {
			return err
		}
		if err := cache.Init(seed[:]); err != nil {
			return err
		}

		ns := &nodeState{nodeID: node.ID, cache: cache, vms: make([]*VM, n)}
		for i := 0; i < n; i++ {
			vm, err := CreateVM(flags, cache, nil)
			if err != nil {
				return err
			}
			ns.vms[i] = vm
		}
		nodes[node.ID] = ns
	}

	p.nodes = nodes
	return nil
}

// initDatasetParallel initializes dataset from cache using
// min(numThreads, hw_concurrency) helper goroutines, each handling a
// contiguous item range with the last absorbing the remainder, per
// spec.md §4.3 step 3.
func initDatasetParallel(dataset *Dataset, cache *Cache, numThreads int) {
	helpers := numThreads
	if hw := runtime.NumCPU(); hw < helpers {
		helpers = hw
	}
	if helpers < 1 {
		helpers = 1
	}

	total := DatasetItemCount()
	perHelper := total / uint64(helpers)

	var wg sync.WaitGroup
	for h := 0; h < helpers; h++ {
		start := uint64(h) * perHelper
		count := perHelper
		if h == helpers-1 {
			count = total - start
		}
		wg.Add(1)
		go func(start, count uint64) {
			defer wg.Done()
			dataset.InitRange(cache, start, count)
		}(start, count)
	}
	wg.Wait()
}

// UpdateSeed re-keys the pool for a new epoch, per spec.md §4.3 "Seed
// update". It is a no-op if seed equals the current seed. If guard reports
// a running session, it is stopped first.
func (p *Pool) UpdateSeed(seed [KeySize]byte, guard SessionGuard) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	if seed == p.currentSeed {
		return nil
	}
	if guard != nil && guard.IsRunning() {
		guard.Stop()
	}

	flags := SelectFlags(p.mode == ModeFastFlat)

	switch p.mode {
	case ModeLightNuma:
		if err := p.reseedLightNumaLocked(flags, seed); err != nil {
			return err
		}
	case ModeFastFlat:
		if err := p.reseedFastFlatLocked(seed); err != nil {
			return err
		}
	default:
		if err := p.reseedLightFlatLocked(flags, seed); err != nil {
			return err
		}
	}

	p.currentSeed = seed
	return nil
}

func (p *Pool) reseedLightNumaLocked(flags Flag, seed [KeySize]byte) error {
	for _, ns := range p.nodes {
		if err := ns.cache.Init(seed[:]); err != nil {
			return err
		}
		for _, vm := range ns.vms {
			vm.Close()
		}
		for i := range ns.vms {
			vm, err := CreateVM(flags, ns.cache, nil)
			if err != nil {
				return err
			}
			ns.vms[i] = vm
		}
	}
	return nil
}

func (p *Pool) reseedFastFlatLocked(seed [KeySize]byte) error {
	if err := p.sharedCache.Init(seed[:]); err != nil {
		return err
	}
	initDatasetParallel(p.dataset, p.sharedCache, p.numThreads)
	for _, vm := range p.flatVMs {
		vm.SetDataset(p.dataset)
	}
	return nil
}

func (p *Pool) reseedLightFlatLocked(flags Flag, seed [KeySize]byte) error {
	if err := p.sharedCache.Init(seed[:]); err != nil {
		return err
	}
	for _, vm := range p.flatVMs {
		vm.Close()
	}
	for i := range p.flatVMs {
		vm, err := CreateVM(flags, p.sharedCache, nil)
		if err != nil {
			return err
		}
		p.flatVMs[i] = vm
	}
	return nil
}

// SetThreadCount performs the resize sequence of spec.md §4.3
// "Thread-count change": stop any running session, save the seed, release
// everything, recompute NUMA assignment for newN workers, and reinitialize.
// On any failure the pool is left released (IsInitialized false).
func (p *Pool) SetThreadCount(newN int, guard SessionGuard) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if guard != nil && guard.IsRunning() {
		guard.Stop()
	}

	seed := p.currentSeed
	p.releaseLocked()

	p.numThreads = newN
	p.assignment = numa.Assign(p.topo, newN)

	return p.initLocked(seed)
}

// VMForThread returns the VM assigned to worker i, per the NUMA-aware
// lookup of spec.md §4.4.
func (p *Pool) VMForThread(i int) (*VM, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.initialized {
		return nil, ErrNotInitialized
	}
	if i < 0 || i >= p.numThreads {
		return nil, ErrThreadOutOfRange
	}

	if p.mode == ModeLightNuma {
		node := p.assignment.ThreadToNode[i]
		rank := p.assignment.RankWithinNode(i)
		ns, ok := p.nodes[node]
		if !ok || rank >= len(ns.vms) {
			return nil, ErrThreadOutOfRange
		}
		return ns.vms[rank], nil
	}
	return p.flatVMs[i], nil
}

// CPUForThread returns the CPU id worker i should pin itself to, per
// spec.md §4.4's assignment table.
func (p *Pool) CPUForThread(i int) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.assignment.ThreadToCPU) {
		return -1
	}
	return p.assignment.ThreadToCPU[i]
}

// NumThreads returns the worker count the pool is currently sized for.
func (p *Pool) NumThreads() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.numThreads
}

// Close releases all resources the pool holds, leaving it uninitialized.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Pool) releaseLocked() {
	for _, vm := range p.flatVMs {
		if vm != nil {
			vm.Close()
		}
	}
	p.flatVMs = nil

	if p.dataset != nil {
		p.dataset.Close()
		p.dataset = nil
	}
	if p.sharedCache != nil {
		p.sharedCache.Close()
		p.sharedCache = nil
	}
	for _, ns := range p.nodes {
		for _, vm := range ns.vms {
			if vm != nil {
				vm.Close()
			}
		}
		if ns.cache != nil {
			ns.cache.Close()
		}
	}
	p.nodes = nil

	p.initialized = false
}
