package heap

import (
	"github.com/iansmith/mazarin-gc/header"
	"github.com/iansmith/mazarin-gc/pagetable"
)

// AllocStruct allocates a struct-shaped object for layout and returns its
// user-visible pointer (spec.md §4.3 h_alloc_struct / §6.1).
func (h *Heap) AllocStruct(layout header.Layout) (uintptr, error) {
	if len(layout) == 0 {
		return 0, ErrInvalidLayout
	}
	size := header.SizeOfNewStruct(layout)
	if size > PageSize {
		return 0, ErrInvalidLayout
	}

	raw, ok := h.alloc(size)
	if !ok {
		return 0, ErrAllocFailed
	}
	p, err := header.CreateStructHeader(layout, h, raw)
	if err != nil {
		return 0, err
	}
	h.am.Set(p, true)
	return p, nil
}

// AllocData allocates a bytes-byte raw payload and returns its
// user-visible pointer (spec.md §4.3 h_alloc_data / §6.1).
func (h *Heap) AllocData(bytes uintptr) (uintptr, error) {
	if bytes == 0 {
		return 0, ErrInvalidSize
	}
	size := header.SizeOfNewData(bytes)
	if size > PageSize {
		return 0, ErrInvalidSize
	}

	raw, ok := h.alloc(size)
	if !ok {
		return 0, ErrAllocFailed
	}
	p, err := header.CreateDataHeader(bytes, h, raw)
	if err != nil {
		return 0, err
	}
	h.am.Set(p, true)
	return p, nil
}

// runGCIfAboveThreshold triggers a collection when servicing an
// additional-bytes request would push occupancy over gcThreshold, and
// reports whether the caller should give up (collection ran and still
// didn't bring occupancy back under the line, spec.md §4.3's double
// check carried forward verbatim — see SPEC_FULL.md's Open Questions).
func (h *Heap) runGCIfAboveThreshold(bytes uintptr) (refuse bool) {
	if h.occupancyWith(bytes) <= h.gcThreshold {
		return false
	}
	if h.GC() == 0 {
		return true
	}
	return h.occupancyWith(bytes) > h.gcThreshold
}

func (h *Heap) occupancyWith(bytes uintptr) float64 {
	return float64(h.Used()+bytes) / float64(h.size)
}

// alloc is the allocation primitive (spec.md §4.3): it runs the
// threshold check against the caller's raw request, rounds to a
// word-aligned size no smaller than MinAlloc, then walks active pages for
// room before promoting a passive page to active. It returns the raw
// address (header included), not the user pointer.
func (h *Heap) alloc(bytes uintptr) (uintptr, bool) {
	if h.runGCIfAboveThreshold(bytes) {
		return 0, false
	}

	if bytes < MinAlloc {
		bytes = MinAlloc
	}
	if bytes%WordSize != 0 {
		bytes += WordSize - bytes%WordSize
	}

	page := h.firstActiveWithRoom(bytes)
	if page == nil {
		if h.pages.CountPassive() <= 1 {
			if h.runGCIfAboveThreshold(bytes) {
				return 0, false
			}
			if h.pages.CountPassive() <= 1 {
				return 0, false
			}
		}
		page = h.pages.FirstPassive()
		page.State = pagetable.Active
	}

	return page.Bumped(bytes), true
}

// allocRaw relocates the live object at src into a fresh raw allocation
// sized to match it, never triggering collection and never targeting a
// page under evacuation (only Active/Passive pages are candidates, per
// spec.md's "never allocate from a TRANSITION page" invariant). It
// returns the new object's user-visible pointer.
func (h *Heap) allocRaw(src uintptr) uintptr {
	rawSize := header.SizeOfExisting(h, src)
	if rawSize < MinAlloc {
		rawSize = MinAlloc
	}
	if rawSize%WordSize != 0 {
		rawSize += WordSize - rawSize%WordSize
	}

	page := h.firstActiveWithRoom(rawSize)
	if page == nil {
		page = h.pages.FirstPassive()
		page.State = pagetable.Active
	}

	rawDst := page.Bumped(rawSize)
	newPtr := header.CopyHeader(h, src, rawDst)
	header.ForwardHeader(h, src, newPtr)

	dataSize := header.DataSizeOfExisting(h, newPtr)
	h.CopyBytes(newPtr, src, dataSize)

	h.am.Set(newPtr, true)
	h.am.Set(src, false)
	return newPtr
}

func (h *Heap) firstActiveWithRoom(bytes uintptr) *pagetable.Page {
	for i := h.pages.NextActive(0); i >= 0; i = h.pages.NextActive(i + 1) {
		if h.pages.Pages[i].Avail() > bytes {
			return h.pages.Pages[i]
		}
	}
	return nil
}
