//go:build cgo && randomx

// Package randomx provides Go bindings to librandomx (the RandomX
// proof-of-work primitive) and the VmPool abstraction the mining engine
// uses to own cache/dataset/VM lifecycles. The primitive itself is treated
// as an opaque C ABI per spec.md §1/§6.4; this file is the CGO boundary.
package randomx

/*
#cgo CFLAGS: -I${SRCDIR}/include
#cgo LDFLAGS: -L${SRCDIR}/lib -lrandomx -lstdc++ -lm
#cgo linux LDFLAGS: -lpthread
#cgo darwin LDFLAGS: -lpthread

#include <stdlib.h>
#include <randomx.h>
*/
import "C"

import (
	"errors"
	"unsafe"
)

// Errors returned by the CGO boundary.
var (
	ErrCacheAllocation   = errors.New("randomx: failed to allocate cache")
	ErrDatasetAllocation = errors.New("randomx: failed to allocate dataset")
	ErrVMCreation        = errors.New("randomx: failed to create VM")
	ErrInvalidKey        = errors.New("randomx: invalid key")
)

// GetFlags returns the flags the RandomX library recommends for the
// running CPU (get_flags in spec.md §6.4).
func GetFlags() Flag {
	return Flag(C.randomx_get_flags())
}

// Cache wraps a randomx_cache. It is safe for concurrent read-only use by
// multiple VMs once Init has returned; Init itself is not concurrency-safe.
type Cache struct {
	ptr *C.randomx_cache
}

// AllocCache allocates (but does not initialize) a cache with the given
// flags (alloc_cache in spec.md §6.4).
func AllocCache(flags Flag) (*Cache, error) {
	ptr := C.randomx_alloc_cache(C.randomx_flags(flags))
	if ptr == nil {
		return nil, ErrCacheAllocation
	}
	return &Cache{ptr: ptr}, nil
}

// Init seeds the cache with key (init_cache in spec.md §6.4).
func (c *Cache) Init(key []byte) error {
	if len(key) == 0 {
		return ErrInvalidKey
	}
	C.randomx_init_cache(c.ptr, unsafe.Pointer(&key[0]), C.size_t(len(key)))
	return nil
}

// Close releases the cache (release_cache in spec.md §6.4).
func (c *Cache) Close() {
	if c.ptr != nil {
		C.randomx_release_cache(c.ptr)
		c.ptr = nil
	}
}

// Dataset wraps a randomx_dataset, the full ~2GB fast-mode expansion of a
// Cache.
type Dataset struct {
	ptr *C.randomx_dataset
}

// DatasetItemCount returns the number of items the dataset holds
// (dataset_item_count in spec.md §6.4).
func DatasetItemCount() uint64 {
	return uint64(C.randomx_dataset_item_count())
}

// AllocDataset allocates (but does not initialize) a dataset with the
// given flags (alloc_dataset in spec.md §6.4).
func AllocDataset(flags Flag) (*Dataset, error) {
	ptr := C.randomx_alloc_dataset(C.randomx_flags(flags))
	if ptr == nil {
		return nil, ErrDatasetAllocation
	}
	return &Dataset{ptr: ptr}, nil
}

// InitRange initializes dataset items [startItem, startItem+itemCount) from
// cache (init_dataset in spec.md §6.4). Callers are responsible for
// partitioning and joining ranges across helper threads; see
// initDatasetParallel in pool.go.
func (d *Dataset) InitRange(cache *Cache, startItem, itemCount uint64) {
	C.randomx_init_dataset(d.ptr, cache.ptr, C.ulong(startItem), C.ulong(itemCount))
}

// Close releases the dataset (release_dataset in spec.md §6.4).
func (d *Dataset) Close() {
	if d.ptr != nil {
		C.randomx_release_dataset(d.ptr)
		d.ptr = nil
	}
}

// VM is a RandomX hashing context. It is NOT safe for concurrent use; each
// worker goroutine owns exactly one VM for the duration of a session, per
// spec.md invariant V1.
type VM struct {
	ptr *C.randomx_vm
}

// CreateVM creates a VM bound to cache (light mode, dataset nil) or to both
// cache and dataset (fast mode), per create_vm in spec.md §6.4.
func CreateVM(flags Flag, cache *Cache, dataset *Dataset) (*VM, error) {
	var cachePtr *C.randomx_cache
	if cache != nil {
		cachePtr = cache.ptr
	}
	var datasetPtr *C.randomx_dataset
	if dataset != nil {
		datasetPtr = dataset.ptr
	}
	ptr := C.randomx_create_vm(C.randomx_flags(flags), cachePtr, datasetPtr)
	if ptr == nil {
		return nil, ErrVMCreation
	}
	return &VM{ptr: ptr}, nil
}

// SetDataset rebinds vm to a new dataset without recreating the VM
// (vm_set_dataset in spec.md §6.4) — used on the fast-mode seed-update path
// where the dataset pointer itself is reused after reinitialization.
func (v *VM) SetDataset(d *Dataset) {
	C.randomx_vm_set_dataset(v.ptr, d.ptr)
}

// CalculateHash computes the RandomX hash of input into out
// (calculate_hash in spec.md §6.4).
func (v *VM) CalculateHash(input []byte, out *[HashSize]byte) {
	if len(input) == 0 {
		var zero byte
		C.randomx_calculate_hash(v.ptr, unsafe.Pointer(&zero), 0, unsafe.Pointer(&out[0]))
		return
	}
	C.randomx_calculate_hash(v.ptr, unsafe.Pointer(&input[0]), C.size_t(len(input)), unsafe.Pointer(&out[0]))
}

// Close destroys the VM (destroy_vm in spec.md §6.4).
func (v *VM) Close() {
	if v.ptr != nil {
		C.randomx_destroy_vm(v.ptr)
		v.ptr = nil
	}
}
