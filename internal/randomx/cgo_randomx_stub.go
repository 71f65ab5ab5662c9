//go:build !cgo || !randomx

// Package randomx provides Go bindings to librandomx. This file stubs the
// CGO boundary out for builds without cgo or without the randomx build tag,
// mirroring common/rpc's and coopmine's cgo/no-cgo split in the teacher
// repo (coopmine/worker.go vs coopmine/worker_stub.go): every exported name
// still exists so the rest of the module type-checks, every operation that
// returns an error fails with ErrUnavailable, and the rest do nothing
// (DatasetItemCount returns 0, CalculateHash leaves out unchanged).
package randomx

import "errors"

// ErrUnavailable is returned by every error-returning RandomX operation when
// this binary was built without cgo or without the randomx build tag.
var ErrUnavailable = errors.New("randomx: not available in this build (requires cgo and the randomx build tag)")

var (
	ErrCacheAllocation   = ErrUnavailable
	ErrDatasetAllocation = ErrUnavailable
	ErrVMCreation        = ErrUnavailable
	ErrInvalidKey        = ErrUnavailable
)

// GetFlags always returns FlagDefault in this build.
func GetFlags() Flag { return FlagDefault }

// Cache stubs out the CGO cache handle.
type Cache struct{}

func AllocCache(flags Flag) (*Cache, error) { return nil, ErrUnavailable }
func (c *Cache) Init(key []byte) error      { return ErrUnavailable }
func (c *Cache) Close()                     {}

// Dataset stubs out the CGO dataset handle.
type Dataset struct{}

func DatasetItemCount() uint64                         { return 0 }
func AllocDataset(flags Flag) (*Dataset, error)        { return nil, ErrUnavailable }
func (d *Dataset) InitRange(c *Cache, start, n uint64) {}
func (d *Dataset) Close()                              {}

// VM stubs out the CGO VM handle.
type VM struct{}

func CreateVM(flags Flag, cache *Cache, dataset *Dataset) (*VM, error) { return nil, ErrUnavailable }
func (v *VM) SetDataset(d *Dataset)                                    {}
func (v *VM) CalculateHash(input []byte, out *[HashSize]byte)          {}
func (v *VM) Close()                                                   {}
