// Package engine implements the mining engine (C5): it spawns one worker
// goroutine per thread, each looping RandomX hashes over a candidate block
// header until one meets the target or the session is stopped.
package engine

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zecrx/randomx-miner/internal/header"
	"github.com/zecrx/randomx-miner/internal/numa"
	"github.com/zecrx/randomx-miner/internal/randomx"
	"github.com/zecrx/randomx-miner/internal/target"
)

// Errors returned by Engine operations.
var (
	ErrAlreadyMining = errors.New("engine: a session is already running")
	ErrPoolNotReady  = errors.New("engine: vm pool is not initialized for this template's seed")
)

// VMSource is the subset of *randomx.Pool the engine depends on, narrowed
// so the engine can be tested without a real RandomX pool.
type VMSource interface {
	IsInitialized() bool
	CurrentSeed() [randomx.KeySize]byte
	VMForThread(i int) (*randomx.VM, error)
	CPUForThread(i int) int
	NumThreads() int
}

// Solution is the tuple get_solution() returns once a worker has found a
// header whose hash meets the template's target, per spec.md §4.5.
type Solution struct {
	FullHeader [header.FullHeaderSize]byte
	PowHash    [header.HashSize]byte
	Template   *header.BlockTemplate
}

// Engine is the C5 Mining Engine: it owns the mining/found/hash_count
// atomics described in spec.md §5 and coordinates worker goroutines over a
// shared VmPool.
type Engine struct {
	pool   VMSource
	logger *slog.Logger

	sessionID string

	mining atomic.Bool
	found  atomic.Bool

	hashCount atomic.Uint64
	startTime atomic.Int64 // UnixNano; 0 when idle

	mu       sync.Mutex
	wg       sync.WaitGroup
	solution atomic.Pointer[Solution]

	stopOnce sync.Once
}

// New builds an Engine bound to pool. pool must already be initialized
// before StartMining is called.
func New(pool VMSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{pool: pool, logger: logger.With("component", "engine")}
}

// IsMining returns the current mining flag (is_mining in spec.md §4.5).
func (e *Engine) IsMining() bool {
	return e.mining.Load()
}

// IsRunning satisfies randomx.SessionGuard so the pool can stop an active
// session of its own accord before a seed update or resize.
func (e *Engine) IsRunning() bool {
	return e.IsMining()
}

// HashCount returns the monotonic hash counter for the current or most
// recent session.
func (e *Engine) HashCount() uint64 {
	return e.hashCount.Load()
}

// Hashrate returns hash_count / elapsed in Hz, or 0 if the session has not
// been running long enough to measure, per spec.md §4.5.
func (e *Engine) Hashrate() float64 {
	start := e.startTime.Load()
	if start == 0 {
		return 0
	}
	elapsed := time.Since(time.Unix(0, start)).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(e.hashCount.Load()) / elapsed
}

// GetSolution returns the published solution, if a session has completed
// with found=true. The second return value is false otherwise.
func (e *Engine) GetSolution() (Solution, bool) {
	if !e.found.Load() {
		return Solution{}, false
	}
	s := e.solution.Load()
	if s == nil {
		return Solution{}, false
	}
	return *s, true
}

// StartMining spawns one worker per pool thread against tmpl, per the
// preconditions and postconditions of spec.md §4.5.
func (e *Engine) StartMining(tmpl *header.BlockTemplate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mining.Load() {
		return ErrAlreadyMining
	}
	if !e.pool.IsInitialized() {
		return ErrPoolNotReady
	}
	if e.pool.CurrentSeed() != [randomx.KeySize]byte(tmpl.SeedHash) {
		return ErrPoolNotReady
	}

	e.sessionID = uuid.NewString()
	e.hashCount.Store(0)
	e.found.Store(false)
	e.solution.Store(nil)
	e.startTime.Store(time.Now().UnixNano())
	e.mining.Store(true)

	n := e.pool.NumThreads()
	e.wg.Add(n)
	for i := 0; i < n; i++ {
		go e.workerLoop(i, tmpl)
	}

	e.logger.Info("mining started", "session", e.sessionID, "threads", n, "height", tmpl.Height)
	return nil
}

// Stop sets mining=false and blocks until every worker has exited, per
// spec.md §4.5. Safe to call when no session is running.
func (e *Engine) Stop() {
	if !e.mining.CompareAndSwap(true, false) {
		// Either never started, or a worker already flipped it on success.
		e.wg.Wait()
		return
	}
	e.wg.Wait()
}

// workerLoop implements the five steps of spec.md §4.5's "Worker loop".
func (e *Engine) workerLoop(threadIdx int, tmpl *header.BlockTemplate) {
	defer e.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := e.logger.With("thread", threadIdx)

	if cpu := e.pool.CPUForThread(threadIdx); cpu >= 0 {
		numa.PinCurrentThread(logger, cpu)
	}

	vm, err := e.pool.VMForThread(threadIdx)
	if err != nil {
		logger.Error("no VM for thread", "error", err)
		return
	}

	var buf [header.FullHeaderSize]byte
	copy(buf[:header.PrefixSize], tmpl.HeaderPrefix[:])

	var nonce [header.NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		logger.Error("failed to seed nonce", "error", err)
		return
	}
	nonce[0], nonce[1] = 0, 0
	nonce[30], nonce[31] = 0, 0

	var hash [header.HashSize]byte

	for e.mining.Load() && !e.found.Load() {
		copy(buf[header.PrefixSize:], nonce[:])

		vm.CalculateHash(buf[:], &hash)
		e.hashCount.Add(1)

		if target.HashMeetsTarget(hash, tmpl.Target) {
			if e.found.CompareAndSwap(false, true) {
				sol := &Solution{FullHeader: buf, PowHash: hash, Template: tmpl}
				e.solution.Store(sol)
				e.mining.Store(false)
				logger.Info("solution found", "session", e.sessionID, "hash_count", e.hashCount.Load())
			}
			return
		}

		incrementNonce(&nonce)
	}
}

// incrementNonce adds 1 to nonce, treated as a little-endian 256-bit
// integer, propagating carry; full overflow wraps silently per
// spec.md §4.5 step 5.e.
func incrementNonce(nonce *[header.NonceSize]byte) {
	for i := range nonce {
		nonce[i]++
		if nonce[i] != 0 {
			return
		}
	}
}
