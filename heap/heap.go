// Package heap implements the core of the collector described by
// spec.md: the heap region itself (§3), the allocator (§4.3), and the
// Cheney-style copying collector (§4.4), wired together exactly the way
// spec.md §2 describes ("data flow: client -> AL -> AM/PT; collection
// time: GC reads PT/AM, consults header collaborator, rewrites
// references, calls AL for relocations").
//
// Ported from the teacher's heapInit/kmalloc/kfree (mazarin's
// src/go/mazarin/heap.go), a best-fit free-list allocator over a single
// pre-mapped kernel region addressed with unsafe.Pointer arithmetic. This
// module keeps that texture — one contiguous backing region, addresses
// computed as uintptr offsets, headers read and written through raw
// pointers — but swaps the allocation strategy for the page-partitioned
// bump allocator spec.md §4.2/§4.3 call for, since best-fit-with-free-list
// has no notion of the page states a moving collector needs.
package heap

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/iansmith/mazarin-gc/allocmap"
	"github.com/iansmith/mazarin-gc/header"
	"github.com/iansmith/mazarin-gc/pagetable"
	"github.com/iansmith/mazarin-gc/stackroots"
)

// Constants from spec.md §6.4.
const (
	WordSize   = header.WordSize
	PageSize   = 2048
	MinAlloc   = 16
	HeaderSize = header.HeaderSize
)

var (
	// ErrInvalidConfig is returned by Init when the requested size or
	// threshold violate spec.md §6.1's preconditions.
	ErrInvalidConfig = errors.New("heap: invalid configuration")
	// ErrAllocFailed is returned by AllocStruct/AllocData when no page has
	// room and collection could not free enough to proceed.
	ErrAllocFailed = errors.New("heap: allocation failed")
	// ErrInvalidLayout is returned by AllocStruct for an empty or
	// oversized layout.
	ErrInvalidLayout = errors.New("heap: invalid struct layout")
	// ErrInvalidSize is returned by AllocData for a zero or oversized
	// request.
	ErrInvalidSize = errors.New("heap: invalid data size")
)

// Config holds h_init's three scalar parameters (spec.md §6.1) as named
// fields instead of positional arguments.
type Config struct {
	// Bytes is the total size of the managed region. Must be a multiple
	// of PageSize and at least 2*PageSize.
	Bytes uintptr
	// UnsafeStack selects the default collection mode: when true, pages
	// directly referenced from the stack are pinned (UNSAFE) instead of
	// evacuated.
	UnsafeStack bool
	// GCThreshold is the fractional heap occupancy, in (0,1], above
	// which the next allocation triggers a collection.
	GCThreshold float64
}

// Heap is the managed region plus its allocation map and page table.
type Heap struct {
	mem   []byte // keeps the backing arena alive; never resliced after Init
	base  uintptr
	size  uintptr
	am    *allocmap.Map
	pages *pagetable.Table

	unsafeStack bool
	gcThreshold float64

	roots *stackroots.Stack
}

// Init allocates a single backing buffer for the managed region and
// returns a ready-to-use Heap (spec.md §6.1 h_init).
func Init(cfg Config) (*Heap, error) {
	if cfg.Bytes < 2*PageSize {
		return nil, fmt.Errorf("%w: %d bytes is below the %d-byte minimum", ErrInvalidConfig, cfg.Bytes, 2*PageSize)
	}
	if cfg.Bytes%PageSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of PageSize (%d)", ErrInvalidConfig, cfg.Bytes, PageSize)
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold > 1 {
		return nil, fmt.Errorf("%w: GCThreshold %v must be in (0,1]", ErrInvalidConfig, cfg.GCThreshold)
	}

	mem := make([]byte, cfg.Bytes)
	base := uintptr(unsafe.Pointer(&mem[0]))

	return &Heap{
		mem:         mem,
		base:        base,
		size:        cfg.Bytes,
		am:          allocmap.New(base, allocmap.WordSize, cfg.Bytes),
		pages:       pagetable.NewTable(base, cfg.Bytes, PageSize),
		unsafeStack: cfg.UnsafeStack,
		gcThreshold: cfg.GCThreshold,
		roots:       stackroots.New(),
	}, nil
}

// Roots returns the heap's shadow stack, onto which the mutator pushes
// the address of every local variable that may hold a live root before a
// call that could trigger collection (see stackroots for why this
// replaces raw stack scanning).
func (h *Heap) Roots() *stackroots.Stack { return h.roots }

// ReadWord implements header.Memory.
func (h *Heap) ReadWord(addr uintptr) uint64 { return *(*uint64)(unsafe.Pointer(addr)) }

// WriteWord implements header.Memory.
func (h *Heap) WriteWord(addr uintptr, v uint64) { *(*uint64)(unsafe.Pointer(addr)) = v }

// CopyBytes implements header.Memory.
func (h *Heap) CopyBytes(dst, src, n uintptr) {
	if n == 0 {
		return
	}
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(dstSlice, srcSlice)
}

// Delete releases the heap's backing buffer. Once called, every
// user-visible pointer the heap ever returned is invalid.
func (h *Heap) Delete() {
	h.mem = nil
}

// DeleteDbg first overwrites every stack word that the collector would
// have treated as a root with dbgValue, then deletes the heap — a
// debugging aid for surfacing use-after-free in tests (spec.md §6.1).
func (h *Heap) DeleteDbg(dbgValue uintptr) {
	top := h.roots.Mark()
	bottom := 0
	for {
		slot, ok := h.roots.FindNextPtr(&bottom, top, h.base, h.base+h.size)
		if !ok {
			break
		}
		slotAddr := uintptr(slot)
		if !h.am.IsUsed(readSlot(slotAddr)) {
			continue
		}
		writeSlot(slotAddr, dbgValue)
	}
	h.Delete()
}

// Avail returns the sum of unallocated bytes across every page.
func (h *Heap) Avail() uintptr { return h.pages.Avail() }

// Used returns the sum of allocated bytes across every page.
func (h *Heap) Used() uintptr { return h.pages.Used() }

// Size returns the total size of the managed region.
func (h *Heap) Size() uintptr { return h.size }

// Strdup copies s (plus a trailing NUL, for byte-for-byte parity with the
// C original's strncpy-based h_strdup) into a fresh data allocation and
// returns its user-visible pointer.
func (h *Heap) Strdup(s string) (uintptr, error) {
	buf := make([]byte, len(s)+1)
	copy(buf, s)

	p, err := h.AllocData(uintptr(len(buf)))
	if err != nil {
		return 0, err
	}
	h.CopyBytes(p, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return p, nil
}

func readSlot(addr uintptr) uintptr { return *(*uintptr)(unsafe.Pointer(addr)) }
func writeSlot(addr, v uintptr)     { *(*uintptr)(unsafe.Pointer(addr)) = v }
