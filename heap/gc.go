package heap

import (
	"github.com/iansmith/mazarin-gc/header"
	"github.com/iansmith/mazarin-gc/pagetable"
)

// GC runs one collection cycle using the heap's default stack-handling
// mode and returns the number of bytes reclaimed (spec.md §4.4 h_gc).
func (h *Heap) GC() uintptr { return h.gc(h.unsafeStack) }

// GCUnsafeStack runs one collection cycle with an explicit override for
// unsafeStack (spec.md §4.4 h_gc_dbg), letting callers exercise both
// collection modes against the same heap in tests.
func (h *Heap) GCUnsafeStack(unsafeStack bool) uintptr { return h.gc(unsafeStack) }

// gc implements the full cycle: demarcate, enumerate roots and expand to
// the live set, optionally pin pages the stack points into directly, then
// evacuate every remaining Transition page in ascending address order
// (spec.md §4.4 and its "Ordering rules").
func (h *Heap) gc(unsafeStack bool) uintptr {
	usedBefore := h.Used()

	h.pages.SetAllActiveTo(pagetable.Transition)

	refs, numStackRefs := h.enumerateRoots()

	if unsafeStack {
		h.pinUnsafePages(refs[:numStackRefs])
	}

	h.pages.EachTransitionToPassive(func(page *pagetable.Page) {
		h.evacuatePage(page, refs)
	})

	if unsafeStack {
		h.pages.SetAllOfStateTo(pagetable.Unsafe, pagetable.Active)
	}

	return usedBefore - h.Used()
}

// evacuatePage relocates every live object refs points into page, in
// ascending root-index order, patching interior references to
// not-yet-visited entries as each object moves.
func (h *Heap) evacuatePage(page *pagetable.Page, refs []uintptr) {
	for i, slot := range refs {
		val := readSlot(slot)
		if !page.Contains(val) {
			continue
		}

		var newVal uintptr
		if header.Type(h, val) == header.ForwardingAddr {
			newVal = header.ForwardingAddress(h, val)
		} else {
			newVal = h.allocRaw(val)
			if header.Type(h, newVal) == header.StructRep {
				h.patchInteriorRefs(refs, i, val, newVal)
			}
		}
		writeSlot(refs[i], newVal)
	}
}

// patchInteriorRefs handles the case where a root entry's own address
// (not its value) falls inside the object that just moved: that entry is
// the address of a pointer field within the object being relocated, so
// when the object moves by offset, the field's address moves with it.
// Entries at index >= fromIndex are the ones not yet written through.
func (h *Heap) patchInteriorRefs(refs []uintptr, fromIndex int, oldAddr, newAddr uintptr) {
	offset := int64(newAddr) - int64(oldAddr)
	lower := oldAddr
	upper := oldAddr + header.DataSizeOfExisting(h, newAddr)

	for i := fromIndex; i < len(refs); i++ {
		if refs[i] >= lower && refs[i] < upper {
			refs[i] = uintptr(int64(refs[i]) + offset)
		}
	}
}

// pinUnsafePages moves every Transition page directly referenced from
// the stack portion of refs to Unsafe, taking it out of the evacuation
// pass entirely (spec.md's unsafe-stack mode).
func (h *Heap) pinUnsafePages(stackRefs []uintptr) {
	for _, slot := range stackRefs {
		val := readSlot(slot)
		if !h.am.IsUsed(val) {
			continue
		}
		idx := h.pages.IndexOf(val)
		if h.pages.Pages[idx].State == pagetable.Transition {
			h.pages.Pages[idx].State = pagetable.Unsafe
		}
	}
}

// enumerateRoots walks the shadow stack for candidate roots, then
// transitively expands each one reachable into the struct graph,
// returning a flat array of slot addresses: refs[:numStackRefs] holds
// the stack roots themselves, the remainder holds interior references
// discovered while walking struct payloads (spec.md §4.4's two-phase
// root array, collapsed to one pass — see DESIGN.md on why the
// C original's two-pass counting scheme, needed only to size a
// fixed-length C array, has no Go analogue).
func (h *Heap) enumerateRoots() (refs []uintptr, numStackRefs int) {
	top := h.roots.Mark()
	bottom := 0
	for {
		slot, ok := h.roots.FindNextPtr(&bottom, top, h.base, h.base+h.size)
		if !ok {
			break
		}
		slotAddr := uintptr(slot)
		if h.am.IsUsed(readSlot(slotAddr)) {
			refs = append(refs, slotAddr)
		}
	}
	numStackRefs = len(refs)

	for i := 0; i < numStackRefs; i++ {
		h.expandLiveSet(&refs, readSlot(refs[i]))
	}

	for i := 0; i < numStackRefs; i++ {
		val := readSlot(refs[i])
		if h.am.IsUsed(val) {
			h.clearFoundRec(val)
		}
	}

	return refs, numStackRefs
}

// expandLiveSet walks p's pointer fields, appending one root entry per
// live pointer found and recursing into ones not yet visited. Marks p
// found so cycles terminate (spec.md §4.4's "expand to the live set").
func (h *Heap) expandLiveSet(refs *[]uintptr, p uintptr) {
	if header.Type(h, p) != header.StructRep {
		return
	}
	n := header.StructPointerCount(h, p)
	if n == 0 {
		return
	}
	slots := make([]uintptr, n)
	if !header.StructPointers(h, p, slots) {
		return
	}

	header.MarkFound(h, p)
	for _, s := range slots {
		val := readSlot(s)
		if !h.am.IsUsed(val) {
			continue
		}
		*refs = append(*refs, s)
		if !header.IsFound(h, val) {
			h.expandLiveSet(refs, val)
		}
	}
}

// clearFoundRec undoes expandLiveSet's marks so no state leaks into the
// next cycle, recursing only into children still marked found to
// terminate on cycles the same way the forward pass did.
func (h *Heap) clearFoundRec(p uintptr) {
	if header.Type(h, p) != header.StructRep {
		return
	}
	n := header.StructPointerCount(h, p)
	if n == 0 {
		return
	}
	slots := make([]uintptr, n)
	if !header.StructPointers(h, p, slots) {
		return
	}

	header.ClearFound(h, p)
	for _, s := range slots {
		val := readSlot(s)
		if h.am.IsUsed(val) && header.IsFound(h, val) {
			h.clearFoundRec(val)
		}
	}
}
